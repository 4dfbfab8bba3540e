package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/tacivo/tacivo/internal/blocknote"
	"golang.org/x/net/html"
)

// HTMLImporter handles HTML files.
type HTMLImporter struct{}

func (p *HTMLImporter) Import(r io.Reader, filename string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &Document{Title: trimExt(filename, ".html", ".htm")}
	if title := findTitle(root); title != "" {
		doc.Title = title
	}

	o := newOutline()

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				o.heading(level, textContent(n))
				return
			}

			// Skip non-content elements.
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "p", "td", "th":
				if t := textContent(n); t != "" {
					o.add(blocknote.Paragraph(t))
				}
				return
			case "li":
				if t := textContent(n); t != "" {
					o.add(listItem(n, t))
				}
				return
			case "blockquote":
				if t := textContent(n); t != "" {
					o.add(blocknote.Block{Type: "quote", Content: []blocknote.Span{{Type: "text", Text: t}}})
				}
				return
			case "pre":
				if t := textContent(n); t != "" {
					o.add(blocknote.Block{Type: "codeBlock", Content: []blocknote.Span{{Type: "text", Text: t}}})
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	// Find <body> or use whole document.
	if body := findBody(root); body != nil {
		walk(body)
	} else {
		walk(root)
	}

	doc.Blocks = o.blocks()
	return doc, nil
}

func listItem(n *html.Node, text string) blocknote.Block {
	typ := "bulletListItem"
	if n.Parent != nil && n.Parent.Type == html.ElementNode && n.Parent.Data == "ol" {
		typ = "numberedListItem"
	}
	return blocknote.Block{Type: typ, Content: []blocknote.Span{{Type: "text", Text: text}}}
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
