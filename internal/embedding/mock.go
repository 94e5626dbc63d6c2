package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/Harshitk-cp/smartsearch/internal/textutil"
)

const defaultMockDimensions = 64

// MockClient produces deterministic feature-hashed vectors: texts that share
// content words get nearby vectors, so dedup behaves plausibly in tests and
// offline runs without an API key.
type MockClient struct {
	dims  int
	Err   error
	Calls []string
}

func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = defaultMockDimensions
	}
	return &MockClient{dims: dims}
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return nil, m.Err
	}

	vec := make([]float32, m.dims)
	for _, w := range textutil.Words(text) {
		if textutil.IsStopWord(w) {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(textutil.Stem(w)))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%m.dims] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
