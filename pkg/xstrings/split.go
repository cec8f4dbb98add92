package xstrings

import "strings"

// SplitWords splits text into alternating word and whitespace tokens so that
// concatenating the tokens reproduces the input exactly. Used for word-paced
// emission where the original spacing must survive.
func SplitWords(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	start := 0
	inSpace := isWhitespace(rune(text[0]))

	for i := 0; i < len(text); i++ {
		space := isWhitespace(rune(text[i]))
		if space != inSpace {
			tokens = append(tokens, text[start:i])
			start = i
			inSpace = space
		}
	}
	tokens = append(tokens, text[start:])

	return tokens
}

// StripFramingLines removes transport framing artifact lines (lines that
// begin with the given prefix, e.g. "id:") from text. The rule is
// line-anchored: a prefix occurring mid-line is legitimate content and is
// left alone.
func StripFramingLines(text, prefix string) string {
	if prefix == "" || !strings.Contains(text, prefix) {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))

	for len(text) > 0 {
		line := text
		rest := ""
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line = text[:i+1]
			rest = text[i+1:]
		}
		if !strings.HasPrefix(line, prefix) {
			sb.WriteString(line)
		}
		text = rest
	}

	return sb.String()
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
