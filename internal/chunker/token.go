package chunker

import "strings"

// TruncationMarker is appended to text cut by Truncate.
const TruncationMarker = "[…truncated]"

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 1.33 tokens per word for English text.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 && len(text) > 0 {
		tokens = 1
	}
	return tokens
}

// Truncate limits text to about maxTokens. It keeps whole paragraphs while they
// fit, cuts the first paragraph that does not on a word boundary, and appends
// TruncationMarker. Text already within the budget is returned unchanged.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}

	var out []string
	used := 0
	for _, para := range splitByParagraphs(text) {
		tokens := EstimateTokens(para)
		if used+tokens <= maxTokens {
			out = append(out, para)
			used += tokens
			continue
		}
		if words := int(float64(maxTokens-used) / 1.33); words > 0 {
			fields := strings.Fields(para)
			if words < len(fields) {
				out = append(out, strings.Join(fields[:words], " "))
			}
		}
		break
	}
	out = append(out, TruncationMarker)
	return strings.Join(out, "\n\n")
}
