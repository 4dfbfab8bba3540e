package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPlaybook is returned when the model output cannot be used.
var ErrInvalidPlaybook = errors.New("invalid playbook")

const (
	maxSections     = 20
	maxTitleLen     = 120
	maxHeadingLen   = 200
	defaultPlaybook = "Untitled playbook"
)

// Playbook is the structured synthesis returned by the model.
type Playbook struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
}

// Section is one part of a playbook. Body is Markdown.
type Section struct {
	Heading string   `json:"heading"`
	Body    string   `json:"body"`
	Sources []string `json:"sources"`
}

// ParsePlaybook decodes model output, tolerating a surrounding code fence,
// and validates it.
func ParsePlaybook(raw string) (*Playbook, error) {
	text := stripCodeBlock(raw)
	var p Playbook
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v (raw: %s)", ErrInvalidPlaybook, err, truncate(text, 200))
	}
	if err := ValidatePlaybook(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// ValidatePlaybook normalizes p in place: text is trimmed, empty or
// instruction-like sections are dropped and the section count is capped. It
// fails when nothing usable is left.
func ValidatePlaybook(p *Playbook) error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidPlaybook)
	}
	p.Title = clip(strings.TrimSpace(p.Title), maxTitleLen)
	if p.Title == "" {
		p.Title = defaultPlaybook
	}
	p.Summary = strings.TrimSpace(p.Summary)

	kept := p.Sections[:0]
	for _, s := range p.Sections {
		s.Heading = clip(strings.TrimSpace(s.Heading), maxHeadingLen)
		s.Body = strings.TrimSpace(s.Body)
		if s.Heading == "" || len(s.Body) < 3 {
			continue
		}
		if injectionPattern.MatchString(s.Heading) || injectionPattern.MatchString(s.Body) {
			continue
		}
		s.Sources = cleanSources(s.Sources)
		kept = append(kept, s)
		if len(kept) == maxSections {
			break
		}
	}
	p.Sections = kept

	if len(p.Sections) == 0 {
		return fmt.Errorf("%w: no usable sections", ErrInvalidPlaybook)
	}
	return nil
}

func cleanSources(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// Markdown renders the playbook as a Markdown document.
func (p *Playbook) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", p.Title)
	if p.Summary != "" {
		sb.WriteString(p.Summary)
		sb.WriteString("\n\n")
	}
	for _, s := range p.Sections {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", s.Heading, s.Body)
		if len(s.Sources) > 0 {
			fmt.Fprintf(&sb, "Sources: %s\n\n", strings.Join(s.Sources, "; "))
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
