package blocknote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxValueDepth bounds how deep props and styles values are kept. Containers
// nested further are consumed and dropped.
const maxValueDepth = 32

// Parse decodes a serialized document with the default limits.
func Parse(data []byte) ([]Block, error) {
	return defaultFlattener.Parse(data)
}

// Parse decodes a serialized document in a single pass over its tokens. The
// top-level value must be an array.
//
// Stored documents come from several editor versions, so fields with an
// unexpected shape are dropped instead of failing the whole document: a
// non-array content (table content) or children value is treated as absent,
// and a non-object entry becomes an empty block or span.
//
// Children of a block at MaxDepth are read past without being kept. Walk
// counts such a block as a skipped subtree, the same as an in-memory tree that
// goes too deep.
func (f *Flattener) Parse(data []byte) ([]Block, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedInput)
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: document is not an array", ErrMalformedInput)
	}
	d := &decoder{
		dec:      json.NewDecoder(bytes.NewReader(trimmed)),
		maxDepth: f.limits.MaxDepth,
	}
	blocks, err := d.document()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return blocks, nil
}

// decoder reads a document through json.Decoder.Token, which keeps its own
// open-container stack and so is not bound by the nesting limit that
// json.Unmarshal applies. Block nesting is tracked on an explicit stack.
type decoder struct {
	dec      *json.Decoder
	maxDepth int
}

// listFrame is a children array being read. owner is the block the array
// belongs to; the top-level array has none.
type listFrame struct {
	owner    Block
	hasOwner bool
	blocks   []Block
	depth    int
}

func (d *decoder) document() ([]Block, error) {
	if err := d.expectDelim('['); err != nil {
		return nil, err
	}
	stack := []listFrame{{depth: 1}}

	for {
		top := &stack[len(stack)-1]

		if !d.dec.More() {
			if err := d.expectDelim(']'); err != nil {
				return nil, err
			}
			done := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !done.hasOwner {
				return done.blocks, d.end()
			}

			b := done.owner
			b.Children = done.blocks
			descend, err := d.blockFields(&b, done.depth-1)
			if err != nil {
				return nil, err
			}
			if descend {
				stack = append(stack, listFrame{owner: b, hasOwner: true, depth: done.depth})
				continue
			}
			parent := &stack[len(stack)-1]
			parent.blocks = append(parent.blocks, b)
			continue
		}

		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		var b Block
		if !isDelim(tok, '{') {
			if err := d.skip(tok); err != nil {
				return nil, err
			}
			top.blocks = append(top.blocks, b)
			continue
		}
		descend, err := d.blockFields(&b, top.depth)
		if err != nil {
			return nil, err
		}
		if descend {
			stack = append(stack, listFrame{owner: b, hasOwner: true, depth: top.depth + 1})
			continue
		}
		top.blocks = append(top.blocks, b)
	}
}

// blockFields reads the fields of a block at depth up to its closing brace.
// It stops early and returns true when it has just opened a children array
// that should be kept.
func (d *decoder) blockFields(b *Block, depth int) (bool, error) {
	for d.dec.More() {
		key, err := d.key()
		if err != nil {
			return false, err
		}
		tok, err := d.dec.Token()
		if err != nil {
			return false, err
		}

		switch key {
		case "id":
			b.ID, err = d.str(tok)
		case "type":
			b.Type, err = d.str(tok)
		case "props":
			b.Props, err = d.object(tok)
		case "content":
			b.Content, err = d.spans(tok)
		case "children":
			if !isDelim(tok, '[') {
				err = d.skip(tok)
				break
			}
			if depth < d.maxDepth {
				return true, nil
			}
			b.Children = nil
			b.deepChildren = d.dec.More()
			err = d.skip(tok)
		default:
			err = d.skip(tok)
		}
		if err != nil {
			return false, err
		}
	}
	return false, d.expectDelim('}')
}

func (d *decoder) spans(tok json.Token) ([]Span, error) {
	if !isDelim(tok, '[') {
		return nil, d.skip(tok)
	}
	var spans []Span
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		var s Span
		if !isDelim(tok, '{') {
			if err := d.skip(tok); err != nil {
				return nil, err
			}
			spans = append(spans, s)
			continue
		}
		for d.dec.More() {
			key, err := d.key()
			if err != nil {
				return nil, err
			}
			tok, err := d.dec.Token()
			if err != nil {
				return nil, err
			}
			switch key {
			case "type":
				s.Type, err = d.str(tok)
			case "text":
				s.Text, err = d.str(tok)
			case "href":
				s.Href, err = d.str(tok)
			case "styles":
				s.Styles, err = d.object(tok)
			default:
				// link spans carry their own content array; it holds no
				// top-level text and is dropped
				err = d.skip(tok)
			}
			if err != nil {
				return nil, err
			}
		}
		if err := d.expectDelim('}'); err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	return spans, d.expectDelim(']')
}

func (d *decoder) object(tok json.Token) (map[string]any, error) {
	if !isDelim(tok, '{') {
		return nil, d.skip(tok)
	}
	v, err := d.value(tok, 0)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

func (d *decoder) value(tok json.Token, depth int) (any, error) {
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	if depth >= maxValueDepth {
		return nil, d.skip(tok)
	}

	switch delim {
	case '{':
		m := map[string]any{}
		for d.dec.More() {
			key, err := d.key()
			if err != nil {
				return nil, err
			}
			tok, err := d.dec.Token()
			if err != nil {
				return nil, err
			}
			if m[key], err = d.value(tok, depth+1); err != nil {
				return nil, err
			}
		}
		return m, d.expectDelim('}')
	case '[':
		s := []any{}
		for d.dec.More() {
			tok, err := d.dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := d.value(tok, depth+1)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, d.expectDelim(']')
	}
	return nil, fmt.Errorf("unexpected %v", delim)
}

// str returns tok when it is a string. Any other value is consumed and
// reads as "".
func (d *decoder) str(tok json.Token) (string, error) {
	if s, ok := tok.(string); ok {
		return s, nil
	}
	return "", d.skip(tok)
}

func (d *decoder) key() (string, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

// skip consumes the rest of the value that starts with tok.
func (d *decoder) skip(tok json.Token) error {
	if !isDelim(tok, '[') && !isDelim(tok, '{') {
		return nil
	}
	for open := 1; open > 0; {
		tok, err := d.dec.Token()
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('['), json.Delim('{'):
			open++
		case json.Delim(']'), json.Delim('}'):
			open--
		}
	}
	return nil
}

func (d *decoder) expectDelim(want json.Delim) error {
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}
	if !isDelim(tok, want) {
		return fmt.Errorf("expected %v, got %v", want, tok)
	}
	return nil
}

// end fails when anything follows the top-level array.
func (d *decoder) end() error {
	_, err := d.dec.Token()
	switch {
	case err == io.EOF:
		return nil
	case err != nil:
		return err
	}
	return errors.New("unexpected data after document")
}

func isDelim(tok json.Token, want json.Delim) bool {
	delim, ok := tok.(json.Delim)
	return ok && delim == want
}
