package chunk

import "strings"

type token struct {
	line int // 1-indexed line this token appears on
}

// Split divides text into chunks per cfg. When chunking is disabled, it
// returns a single chunk spanning every line of text.
func Split(text string, cfg Config) []Chunk {
	lines := strings.Split(text, "\n")

	if !cfg.Enabled {
		if text == "" {
			return []Chunk{{Index: 0, StartLine: 1, EndLine: 1, TokenCount: 0, Text: text}}
		}
		return []Chunk{{
			Index:      0,
			StartLine:  1,
			EndLine:    len(lines),
			TokenCount: countTokens(text),
			Text:       text,
		}}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultConfig().MaxTokens
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxTokens {
		overlap = maxTokens - 1
	}

	tokens := tokenize(lines)
	if len(tokens) == 0 {
		return []Chunk{{Index: 0, StartLine: 1, EndLine: len(lines), TokenCount: 0, Text: text}}
	}

	var chunks []Chunk
	start := 0
	for start < len(tokens) {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		startLine := tokens[start].line
		endLine := tokens[end-1].line

		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			StartLine:  startLine,
			EndLine:    endLine,
			TokenCount: end - start,
			Text:       strings.Join(lines[startLine-1:endLine], "\n"),
		})

		if end == len(tokens) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// tokenize approximates a tokenizer with whitespace splitting, recording
// the 1-indexed source line each token came from.
func tokenize(lines []string) []token {
	var tokens []token
	for i, line := range lines {
		for _, f := range strings.Fields(line) {
			_ = f
			tokens = append(tokens, token{line: i + 1})
		}
	}
	return tokens
}

func countTokens(text string) int {
	return len(strings.Fields(text))
}
