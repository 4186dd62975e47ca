package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// StaticDimension is the vector width produced by StaticEmbedder.
const StaticDimension = 256

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var codeStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true, "null": true,
}

// StaticEmbedder is a deterministic, hash-based Embedder with no network
// or model dependency. It trades semantic quality for availability: it's
// the embedder gundog falls back to when no model-backed Embedder is
// configured.
type StaticEmbedder struct {
	identifier string
}

// NewStaticEmbedder creates a StaticEmbedder. identifier is persisted in
// the manifest and should distinguish this fallback from model-backed
// embedders (e.g. "static/v1").
func NewStaticEmbedder(identifier string) *StaticEmbedder {
	if identifier == "" {
		identifier = "static/v1"
	}
	return &StaticEmbedder{identifier: identifier}
}

func (e *StaticEmbedder) Identifier() string { return e.identifier }
func (e *StaticEmbedder) Dimension() int     { return StaticDimension }

// EmbedBatch computes one hash-based vector per text. It never fails.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorize(t)
	}
	return out, nil
}

func vectorize(text string) []float32 {
	v := make([]float32, StaticDimension)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return v
	}

	for _, tok := range filterStopWords(tokenize(trimmed)) {
		v[hashToIndex(tok, StaticDimension)] += tokenWeight
	}
	for _, ng := range extractNgrams(normalizeForNgrams(trimmed), ngramSize) {
		v[hashToIndex(ng, StaticDimension)] += ngramWeight
	}
	return v
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, sub := range splitCodeToken(word) {
			if lower := strings.ToLower(sub); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitCodeToken splits snake_case and camelCase identifiers so that
// "parseHTMLBody" and "parse_html_body" hash to the same buckets.
func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !codeStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
