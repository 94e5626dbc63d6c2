package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderNone, "")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewClient(ProviderOpenAI, "")
	assert.Error(t, err)

	c, err = NewClient(ProviderMock, "")
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewClient("word2vec", "k")
	assert.Error(t, err)
}

func TestOpenAIEmbed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key")
	c.endpoint = srv.URL
	vec, err := c.Embed(context.Background(), "  remote learning  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "remote learning", got.Input)
	assert.Equal(t, model, got.Model)

	_, err = c.Embed(context.Background(), "   ")
	assert.Error(t, err)
}

func TestOpenAIEmbedErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient("key")
	c.endpoint = srv.URL
	_, err := c.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "status 429")
}

func TestMockClientIsDeterministic(t *testing.T) {
	m := NewMockClient(32)
	a, _ := m.Embed(context.Background(), "Students enjoyed flexible schedules")
	b, _ := m.Embed(context.Background(), "students enjoyed flexible schedules!")
	c, _ := m.Embed(context.Background(), "Tuition prices climbed sharply")

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, m.Calls, 3)
}
