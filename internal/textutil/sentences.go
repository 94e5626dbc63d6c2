package textutil

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var markerRe = regexp.MustCompile(`\[\s*(\d+(?:\s*,\s*\d+)*)\s*\]`)

var abbreviations = map[string]struct{}{
	"e.g.": {}, "i.e.": {}, "etc.": {}, "vs.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {},
	"prof.": {}, "st.": {}, "jr.": {}, "sr.": {}, "inc.": {}, "ltd.": {}, "co.": {}, "u.s.": {},
	"u.k.": {}, "no.": {}, "approx.": {}, "fig.": {},
}

// Sentences splits text on ., ! and ? followed by whitespace or end of input.
// Citation markers that trail a terminator ("claim. [2]") stay with the
// sentence they close. Newlines always end a sentence.
func Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, splitLine(line)...)
	}
	return out
}

func splitLine(line string) []string {
	var out []string
	runes := []rune(line)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?' || runes[j] == '"' || runes[j] == ')') {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '[' {
			continue
		}
		if r == '.' && endsWithAbbreviation(runes[start:i+1]) {
			continue
		}
		// Pull trailing markers into this sentence.
		k := j
		for {
			m := k
			for m < len(runes) && unicode.IsSpace(runes[m]) {
				m++
			}
			loc := markerRe.FindStringIndex(string(runes[m:]))
			if loc == nil || loc[0] != 0 {
				break
			}
			k = m + len([]rune(string(runes[m:])[:loc[1]]))
		}
		if s := strings.TrimSpace(string(runes[start:k])); s != "" {
			out = append(out, s)
		}
		start = k
		i = k - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func endsWithAbbreviation(r []rune) bool {
	s := strings.ToLower(string(r))
	idx := strings.LastIndexFunc(s, unicode.IsSpace)
	word := s[idx+1:]
	_, ok := abbreviations[word]
	return ok
}

// Markers returns the distinct citation numbers referenced in s, in order of
// first appearance.
func Markers(s string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range markerRe.FindAllStringSubmatch(s, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// StripMarkers removes citation markers and tidies the spacing they leave.
func StripMarkers(s string) string {
	s = markerRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	for _, p := range []string{".", ",", "!", "?", ";", ":"} {
		s = strings.ReplaceAll(s, " "+p, p)
	}
	return strings.TrimSpace(s)
}

// WithMarkers appends markers before the sentence's closing punctuation:
// WithMarkers("A claim.", []int{2, 1}) == "A claim [1][2]."
func WithMarkers(sentence string, markers []int) string {
	body := strings.TrimSpace(sentence)
	if len(markers) == 0 {
		return body
	}
	sorted := append([]int(nil), markers...)
	sort.Ints(sorted)
	trail := ""
	for len(body) > 0 {
		last := body[len(body)-1]
		if last != '.' && last != '!' && last != '?' {
			break
		}
		trail = string(last) + trail
		body = body[:len(body)-1]
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteByte(' ')
	for _, m := range sorted {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(m))
		sb.WriteString("]")
	}
	if trail == "" {
		trail = "."
	}
	sb.WriteString(trail)
	return sb.String()
}

// CleanMarkdown drops the markdown decorations that commonly wrap answers
// (emphasis, headings, list bullets, inline link syntax).
func CleanMarkdown(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>")
		line = strings.TrimSpace(line)
		for _, bullet := range []string{"- ", "* ", "+ "} {
			line = strings.TrimPrefix(line, bullet)
		}
		line = citationLinkRe.ReplaceAllString(line, "[$1]")
		line = markdownLinkRe.ReplaceAllString(line, "$1")
		line = strings.NewReplacer("**", "", "__", "", "`", "").Replace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

var (
	citationLinkRe = regexp.MustCompile(`\[(\d+)\]\([^)]*\)`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
)
