package importer

import "github.com/tacivo/tacivo/internal/blocknote"

// The editor renders heading levels 1-3 only.
const maxHeadingLevel = 3

// outline nests body blocks under the closest preceding heading of a lower
// level, turning a flat heading/body stream into a block tree.
type outline struct {
	root  *section
	stack []*section
}

type section struct {
	level       int
	title       string
	body        []blocknote.Block
	subsections []*section
}

func newOutline() *outline {
	root := &section{}
	return &outline{root: root, stack: []*section{root}}
}

func (o *outline) heading(level int, title string) {
	// Pop until the top of the stack is a parent of this heading.
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	s := &section{level: level, title: title}
	parent := o.stack[len(o.stack)-1]
	parent.subsections = append(parent.subsections, s)
	o.stack = append(o.stack, s)
}

func (o *outline) add(blocks ...blocknote.Block) {
	top := o.stack[len(o.stack)-1]
	top.body = append(top.body, blocks...)
}

func (o *outline) blocks() []blocknote.Block {
	return o.root.children()
}

func (s *section) children() []blocknote.Block {
	out := make([]blocknote.Block, 0, len(s.body)+len(s.subsections))
	out = append(out, s.body...)
	for _, sub := range s.subsections {
		level := sub.level
		if level > maxHeadingLevel {
			level = maxHeadingLevel
		}
		out = append(out, blocknote.Heading(level, sub.title, sub.children()...))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
