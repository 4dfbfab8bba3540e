package importer

import (
	"bytes"
	"io"
	"strings"

	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownImporter handles Markdown files using goldmark.
type MarkdownImporter struct{}

func (p *MarkdownImporter) Import(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Document{
		Title:  trimExt(filename, ".md", ".markdown"),
		Blocks: markdownBlocks(src),
	}, nil
}

// FromMarkdown converts markdown text, such as a model-written document, into
// editor blocks.
func FromMarkdown(md string) []blocknote.Block {
	return markdownBlocks([]byte(md))
}

func markdownBlocks(src []byte) []blocknote.Block {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	o := newOutline()
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			o.heading(node.Level, inlineText(node, src))
		case *ast.List:
			o.add(listBlocks(node, src)...)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if t := codeText(node, src); t != "" {
				o.add(blocknote.Block{
					Type:    "codeBlock",
					Content: []blocknote.Span{{Type: "text", Text: t}},
				})
			}
		case *ast.Blockquote:
			if t := quoteText(node, src); t != "" {
				o.add(blocknote.Block{
					Type:    "quote",
					Content: []blocknote.Span{{Type: "text", Text: t}},
				})
			}
		case *ast.ThematicBreak:
		default:
			if t := inlineText(n, src); t != "" {
				o.add(blocknote.Paragraph(t))
			}
		}
	}
	return o.blocks()
}

func listBlocks(list *ast.List, src []byte) []blocknote.Block {
	typ := "bulletListItem"
	if list.IsOrdered() {
		typ = "numberedListItem"
	}

	var out []blocknote.Block
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		b := blocknote.Block{Type: typ}
		var parts []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				b.Children = append(b.Children, listBlocks(sub, src)...)
				continue
			}
			if t := inlineText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		b.Content = []blocknote.Span{{Type: "text", Text: strings.Join(parts, " ")}}
		out = append(out, b)
	}
	return out
}

// inlineText collects the text of a node's inline descendants.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writeInline(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writeInline(buf *bytes.Buffer, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			switch {
			case t.HardLineBreak():
				buf.WriteByte('\n')
			case t.SoftLineBreak():
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.URL(src))
		default:
			writeInline(buf, c, src)
		}
	}
}

func codeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func quoteText(n ast.Node, src []byte) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := inlineText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
