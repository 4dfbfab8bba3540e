package blocknote

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrMalformedInput indicates a serialized document that is not a JSON array.
	ErrMalformedInput = errors.New("malformed document")
	// ErrDepthExceeded indicates a subtree nested deeper than Limits.MaxDepth.
	ErrDepthExceeded = errors.New("document nesting too deep")
	// ErrTooManyBlocks indicates a walk that visited more than Limits.MaxBlocks.
	ErrTooManyBlocks = errors.New("document has too many blocks")
)

const paragraphSep = "\n\n"

// Limits bound a walk. Values <= 0 fall back to the defaults.
type Limits struct {
	MaxDepth  int
	MaxBlocks int
}

// DefaultLimits returns the limits used by the package-level functions.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:  256,
		MaxBlocks: 100000,
	}
}

// Flattener reduces documents to plain text: block text in depth-first order,
// parent before children, one paragraph per non-empty block, paragraphs
// separated by a blank line. A Flattener is safe for concurrent use.
type Flattener struct {
	limits Limits
	log    *slog.Logger
}

// NewFlattener returns a Flattener that reports absorbed errors to log.
// A nil logger uses slog.Default().
func NewFlattener(limits Limits, log *slog.Logger) *Flattener {
	def := DefaultLimits()
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = def.MaxDepth
	}
	if limits.MaxBlocks <= 0 {
		limits.MaxBlocks = def.MaxBlocks
	}
	return &Flattener{limits: limits, log: log}
}

func (f *Flattener) logger() *slog.Logger {
	if f.log == nil {
		return slog.Default()
	}
	return f.log
}

// Limits returns the effective limits.
func (f *Flattener) Limits() Limits {
	return f.limits
}

type frame struct {
	blocks []Block
	next   int
	depth  int
}

// Walk flattens blocks and returns the text together with any limit error.
// When a subtree is deeper than MaxDepth it is skipped and the walk goes on
// with its siblings; when MaxBlocks is reached the walk stops. In both cases
// the text collected so far is returned alongside the error.
func (f *Flattener) Walk(blocks []Block) (string, error) {
	if len(blocks) == 0 {
		return "", nil
	}

	var (
		paragraphs []string
		visited    int
		skipped    int
		err        error
	)
	stack := []frame{{blocks: blocks, depth: 1}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.blocks) {
			stack = stack[:len(stack)-1]
			continue
		}
		b := &top.blocks[top.next]
		top.next++
		depth := top.depth

		visited++
		if visited > f.limits.MaxBlocks {
			err = fmt.Errorf("%w: limit %d", ErrTooManyBlocks, f.limits.MaxBlocks)
			break
		}

		if t := b.Text(); t != "" {
			paragraphs = append(paragraphs, t)
		}

		if len(b.Children) == 0 {
			if b.deepChildren {
				skipped++
			}
			continue
		}
		if depth >= f.limits.MaxDepth {
			skipped++
			continue
		}
		stack = append(stack, frame{blocks: b.Children, depth: depth + 1})
	}

	if skipped > 0 && err == nil {
		err = fmt.Errorf("%w: limit %d, %d subtrees skipped", ErrDepthExceeded, f.limits.MaxDepth, skipped)
	}
	return strings.Join(paragraphs, paragraphSep), err
}

// Flatten returns the plain text of blocks. It never fails: limit errors are
// logged and the partial text is returned.
func (f *Flattener) Flatten(blocks []Block) string {
	text, err := f.Walk(blocks)
	if err != nil {
		f.logger().Warn("document truncated while flattening", "error", err)
	}
	return text
}

// FlattenSerialized decodes a serialized document and flattens it. Malformed
// input is logged and yields "".
func (f *Flattener) FlattenSerialized(serialized string) string {
	blocks, err := f.Parse([]byte(serialized))
	if err != nil {
		f.logger().Warn("cannot flatten document", "error", err, "input_bytes", len(serialized))
		return ""
	}
	return f.Flatten(blocks)
}

var defaultFlattener = NewFlattener(Limits{}, nil)

// Flatten flattens blocks with the default limits.
func Flatten(blocks []Block) string {
	return defaultFlattener.Flatten(blocks)
}

// FlattenSerialized decodes and flattens a serialized document with the
// default limits.
func FlattenSerialized(serialized string) string {
	return defaultFlattener.FlattenSerialized(serialized)
}
