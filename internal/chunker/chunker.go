// Package chunker splits flattened documents into token-sized pieces so they
// fit into model prompts.
package chunker

import (
	"strings"

	"github.com/tacivo/tacivo/internal/blocknote"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize    int // Target chunk size in tokens.
	ChunkOverlap int // Overlap between consecutive chunks in tokens; negative disables.
	MinChunk     int // Minimum chunk size to emit.

	// Flattener renders the blocks of a section; nil uses blocknote's defaults.
	Flattener *blocknote.Flattener
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1500,
		ChunkOverlap: 200,
		MinChunk:     100,
	}
}

// Chunk is a sized text segment with its heading path.
type Chunk struct {
	Text       string
	Index      int
	Breadcrumb []string // Heading hierarchy, e.g. ["Onboarding", "Week one"]
}

// Headings nested deeper than this are folded into their parent section.
const maxHeadingDepth = 32

// ChunkDocument walks a document and produces structure-aware chunks. Text
// between headings forms a section; each heading extends the breadcrumb of
// the sections below it.
func ChunkDocument(blocks []blocknote.Block, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1500
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.MinChunk <= 0 {
		cfg.MinChunk = 1
	}

	var chunks []Chunk
	walkSection(blocks, nil, cfg, &chunks, 0)
	return chunks
}

// walkSection visits one level of blocks, emitting the text that sits directly
// under the current breadcrumb and descending into headings.
func walkSection(blocks []blocknote.Block, breadcrumb []string, cfg Config, chunks *[]Chunk, depth int) {
	var section []string
	flush := func() {
		if len(section) > 0 {
			emit(strings.Join(section, "\n\n"), breadcrumb, cfg, chunks)
			section = section[:0]
		}
	}

	for i := range blocks {
		b := &blocks[i]
		if b.HeadingLevel() > 0 && depth < maxHeadingDepth {
			flush()
			bc := copyBreadcrumb(breadcrumb)
			if title := b.Text(); title != "" {
				bc = append(bc, title)
			}
			walkSection(b.Children, bc, cfg, chunks, depth+1)
			continue
		}
		if t := cfg.flatten(*b); t != "" {
			section = append(section, t)
		}
	}
	flush()
}

func (c Config) flatten(b blocknote.Block) string {
	if c.Flattener == nil {
		return blocknote.Flatten([]blocknote.Block{b})
	}
	return c.Flattener.Flatten([]blocknote.Block{b})
}

func emit(text string, breadcrumb []string, cfg Config, chunks *[]Chunk) {
	parts := []string{text}
	if EstimateTokens(text) > cfg.ChunkSize {
		parts = splitText(text, cfg.ChunkSize, cfg.ChunkOverlap)
	}
	for _, part := range parts {
		if EstimateTokens(part) < cfg.MinChunk {
			continue
		}
		*chunks = append(*chunks, Chunk{
			Text:       part,
			Index:      len(*chunks),
			Breadcrumb: copyBreadcrumb(breadcrumb),
		})
	}
}

// splitText breaks text into chunks of approximately targetTokens, with overlap.
func splitText(text string, targetTokens, overlapTokens int) []string {
	// Split by paragraphs first.
	paragraphs := splitByParagraphs(text)

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, para := range paragraphs {
		paraTokens := EstimateTokens(para)

		// If a single paragraph exceeds the target, split it further.
		if paraTokens > targetTokens {
			if currentTokens > 0 {
				result = append(result, current.String())
				current.Reset()
				currentTokens = 0
			}
			subParts := splitBySentences(para, targetTokens, overlapTokens)
			result = append(result, subParts...)
			continue
		}

		if currentTokens+paraTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())

			// Start next chunk with overlap from end of current.
			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}

	return result
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences breaks a large paragraph into sentence-based chunks.
func splitBySentences(text string, targetTokens, overlapTokens int) []string {
	sentences := splitSentences(text)

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, sent := range sentences {
		sentTokens := EstimateTokens(sent)

		if currentTokens+sentTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())
			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}

	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}

// getOverlapText extracts the last N tokens worth of text for overlap.
func getOverlapText(text string, targetTokens int) string {
	words := strings.Fields(text)
	// Approximate: 1.33 tokens per word.
	targetWords := int(float64(targetTokens) / 1.33)
	if targetWords <= 0 || len(words) <= targetWords {
		return ""
	}
	return strings.Join(words[len(words)-targetWords:], " ")
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
