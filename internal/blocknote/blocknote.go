// Package blocknote models the block-structured rich documents produced by the
// BlockNote editor and reduces them to plain text for prompts and indexing.
package blocknote

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Span is an inline run of text inside a block.
type Span struct {
	Type   string         `json:"type,omitempty"`
	Text   string         `json:"text"`
	Styles map[string]any `json:"styles,omitempty"`
	Href   string         `json:"href,omitempty"`
}

// Block is one node of a document tree.
type Block struct {
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Content  []Span         `json:"content,omitempty"`
	Children []Block        `json:"children,omitempty"`

	// deepChildren marks a block whose children Parse dropped at MaxDepth.
	deepChildren bool
}

// Text returns the block's own span text, concatenated and trimmed.
// Children are not included.
func (b *Block) Text() string {
	switch len(b.Content) {
	case 0:
		return ""
	case 1:
		return trimText(b.Content[0].Text)
	}
	var sb strings.Builder
	for _, s := range b.Content {
		sb.WriteString(s.Text)
	}
	return trimText(sb.String())
}

// trimText trims the whitespace set the editor itself trims with: Unicode
// white space plus U+FEFF, but not U+0085.
func trimText(s string) string {
	return strings.TrimFunc(s, isTrimmedSpace)
}

func isTrimmedSpace(r rune) bool {
	switch r {
	case '\uFEFF':
		return true
	case '\u0085':
		return false
	}
	return unicode.IsSpace(r)
}

// HeadingLevel returns the level of a heading block, or 0 for any other block.
func (b *Block) HeadingLevel() int {
	if b.Type != "heading" {
		return 0
	}
	switch v := b.Props["level"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 1
}

// Marshal serializes a document in the editor's JSON form. A nil document is
// written as an empty array.
func Marshal(blocks []Block) ([]byte, error) {
	if blocks == nil {
		blocks = []Block{}
	}
	return json.Marshal(blocks)
}

// Paragraph builds a paragraph block holding a single unstyled span.
func Paragraph(text string) Block {
	return Block{
		Type:    "paragraph",
		Content: []Span{{Type: "text", Text: text}},
	}
}

// Heading builds a heading block at the given level with optional children.
func Heading(level int, text string, children ...Block) Block {
	return Block{
		Type:     "heading",
		Props:    map[string]any{"level": level},
		Content:  []Span{{Type: "text", Text: text}},
		Children: children,
	}
}

// BulletItem builds a bullet list item block.
func BulletItem(text string) Block {
	return Block{
		Type:    "bulletListItem",
		Content: []Span{{Type: "text", Text: text}},
	}
}
