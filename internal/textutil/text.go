// Package textutil holds the lexical helpers shared by routing, aggregation,
// verification and synthesis.
package textutil

import (
	"net/url"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "by": {}, "with": {}, "from": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "it": {}, "its": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "there": {}, "their": {}, "they": {}, "them": {},
	"he": {}, "she": {}, "his": {}, "her": {}, "we": {}, "our": {}, "you": {}, "your": {}, "i": {},
	"me": {}, "my": {}, "do": {}, "does": {}, "did": {}, "has": {}, "have": {}, "had": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"so": {}, "if": {}, "than": {}, "then": {}, "also": {}, "very": {}, "about": {}, "into": {},
	"which": {}, "who": {}, "what": {}, "when": {}, "where": {}, "how": {}, "why": {}, "all": {},
	"some": {}, "any": {}, "more": {}, "most": {}, "such": {}, "just": {}, "over": {}, "s": {},
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "none": {}, "nor": {}, "neither": {}, "cannot": {},
	"without": {}, "dont": {}, "doesnt": {}, "didnt": {}, "isnt": {}, "arent": {}, "wasnt": {},
	"werent": {}, "cant": {}, "wont": {}, "hasnt": {}, "havent": {}, "hadnt": {}, "shouldnt": {},
	"wouldnt": {}, "couldnt": {}, "aint": {}, "false": {}, "myth": {}, "untrue": {},
}

// Words splits s into lowercase alphanumeric tokens. Apostrophes are removed
// first so contractions stay one token ("don't" -> "dont").
func Words(s string) []string {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

func IsNegation(w string) bool {
	_, ok := negations[w]
	return ok
}

// Stem strips common English inflections. It is deliberately light: the goal
// is to line up "students"/"student" and "learning"/"learn", not linguistics.
func Stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	case len(w) > 4 && (strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes") ||
		strings.HasSuffix(w, "sses") || strings.HasSuffix(w, "xes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us"):
		return w[:len(w)-1]
	}
	return w
}

// Features is the lexical fingerprint of a snippet.
type Features struct {
	Shingles map[string]struct{}
	Negated  bool
}

// Analyze builds unigram and bigram shingles over stemmed content words.
// Negation words are left out of the shingles and folded into Negated (odd
// count means the statement is negated), so "X is safe" and "X is not safe"
// share shingles but differ in polarity.
func Analyze(s string) Features {
	f := Features{Shingles: make(map[string]struct{})}
	var content []string
	neg := 0
	for _, w := range Words(s) {
		if IsNegation(w) {
			neg++
			continue
		}
		if IsStopWord(w) {
			continue
		}
		content = append(content, Stem(w))
	}
	f.Negated = neg%2 == 1
	for i, w := range content {
		f.Shingles[w] = struct{}{}
		if i > 0 {
			f.Shingles[content[i-1]+" "+w] = struct{}{}
		}
	}
	return f
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is Jaccard over the shingles of two strings.
func Similarity(a, b string) float64 {
	return Jaccard(Analyze(a).Shingles, Analyze(b).Shingles)
}

// CanonicalURL lowercases scheme and host, drops "www.", fragments, tracking
// parameters and a trailing slash. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parsed.Fragment = ""
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for _, p := range []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"fbclid", "gclid", "msclkid", "ref", "source",
		} {
			q.Del(p)
		}
		parsed.RawQuery = q.Encode()
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

// Truncate cuts s to at most n runes, appending "..." when it cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
