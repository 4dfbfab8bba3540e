package chunker

import (
	"strings"

	"github.com/tacivo/tacivo/internal/blocknote"
)

// Fit renders a document within about maxTokens. Sections are kept in
// document order, each labelled with its heading path; the first section
// that does not fit is cut by Truncate and the rest are dropped. A
// non-positive maxTokens disables the limit. Blocks are rendered with f, or
// with blocknote's defaults when f is nil.
func Fit(blocks []blocknote.Block, maxTokens int, f *blocknote.Flattener) string {
	chunks := ChunkDocument(blocks, Config{ChunkSize: DefaultConfig().ChunkSize, MinChunk: 1, Flattener: f})

	out := make([]string, 0, len(chunks))
	used := 0
	for _, c := range chunks {
		text := c.Text
		if len(c.Breadcrumb) > 0 {
			text = "[" + strings.Join(c.Breadcrumb, " > ") + "]\n" + text
		}
		tokens := EstimateTokens(text)
		if maxTokens > 0 && used+tokens > maxTokens {
			if rest := maxTokens - used; rest > 0 {
				out = append(out, Truncate(text, rest))
			} else {
				out = append(out, TruncationMarker)
			}
			break
		}
		out = append(out, text)
		used += tokens
	}
	return strings.Join(out, "\n\n")
}
