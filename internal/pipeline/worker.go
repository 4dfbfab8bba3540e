package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tacivo/tacivo/internal/ai"
	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/chunker"
	"github.com/tacivo/tacivo/internal/importer"
	"github.com/tacivo/tacivo/internal/store"
)

// Store is the persistence a worker needs.
type Store interface {
	GetDocument(ctx context.Context, ownerID, id string) (store.Document, error)
	CreatePlaybook(ctx context.Context, pb store.Playbook) (store.Playbook, error)
}

// Completer sends a request to the model.
type Completer interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
	Model() string
}

// TextSource turns a serialized document into plain text.
type TextSource interface {
	Text(ctx context.Context, serialized string) string
}

const playbookMaxTokens = 8192

// Worker processes a single playbook job.
type Worker struct {
	store         Store
	claude        Completer
	text          TextSource
	flattener     *blocknote.Flattener
	log           *slog.Logger
	contextTokens int
	backoff       func(attempt int) time.Duration
}

// NewWorker returns a worker. flattener is the one behind text; it is used to
// re-parse documents that have to be cut to fit the context budget.
func NewWorker(st Store, claude Completer, text TextSource, flattener *blocknote.Flattener, log *slog.Logger, contextTokens int) *Worker {
	if contextTokens <= 0 {
		contextTokens = 120000
	}
	return &Worker{
		store:         st,
		claude:        claude,
		text:          text,
		flattener:     flattener,
		log:           log,
		contextTokens: contextTokens,
		backoff:       Backoff,
	}
}

// Process runs the full synthesis pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "user_id", job.UserID)

	// Phase 1: Load
	job.SetStatus(StatusLoading, "loading documents")
	docs := w.load(ctx, job, log)
	if len(docs) == 0 {
		job.AddError("no source documents could be loaded")
		job.SetStatus(StatusFailed, "loading")
		return
	}

	// Phase 2: Flatten and fit into the context budget.
	job.SetStatus(StatusFlattening, "flattening documents")
	sources, ids := w.flatten(ctx, job, docs)
	if len(sources) == 0 {
		job.AddError("source documents contain no text")
		job.SetStatus(StatusFailed, "flattening")
		return
	}

	// Phase 3: Synthesize
	job.SetStatus(StatusSynthesizing, "synthesizing playbook")
	raw, err := Complete(ctx, w.claude, ai.Request{
		Kind:      "playbook",
		System:    "You are an expert technical writer who turns interview notes into operational playbooks.",
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: ai.PlaybookPrompt(job.Title, sources)}},
		MaxTokens: playbookMaxTokens,
	}, w.backoff, log)
	if err != nil {
		log.Error("synthesis failed", "error", err)
		job.AddError(fmt.Sprintf("synthesize: %s", err))
		job.SetStatus(StatusFailed, "synthesizing")
		return
	}
	pb, err := ai.ParsePlaybook(raw)
	if err != nil {
		log.Error("invalid playbook output", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "synthesizing")
		return
	}
	if job.Title != "" {
		pb.Title = job.Title
	}
	job.update(func(p *Progress) { p.Sections = len(pb.Sections) })

	// Phase 4: Store
	job.SetStatus(StatusStoring, "storing playbook")
	content, err := blocknote.Marshal(PlaybookBlocks(pb))
	if err != nil {
		job.AddError(fmt.Sprintf("marshal playbook: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	stored, err := w.store.CreatePlaybook(ctx, store.Playbook{
		OwnerID:           job.UserID,
		Title:             pb.Title,
		Summary:           pb.Summary,
		Content:           string(content),
		SourceDocumentIDs: ids,
		Model:             w.claude.Model(),
	})
	if err != nil {
		log.Error("store playbook failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	job.setPlaybook(stored.ID)
	log.Info("playbook stored", "playbook_id", stored.ID, "sections", len(pb.Sections), "sources", len(ids))

	if job.HasErrors() {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) load(ctx context.Context, job *Job, log *slog.Logger) []store.Document {
	docs := make([]store.Document, 0, len(job.DocumentIDs))
	for _, id := range job.DocumentIDs {
		doc, err := w.store.GetDocument(ctx, job.UserID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				job.AddError(fmt.Sprintf("document %s: not found", id))
			} else {
				log.Error("load document failed", "doc_id", id, "error", err)
				job.AddError(fmt.Sprintf("document %s: %s", id, err))
			}
			continue
		}
		docs = append(docs, doc)
		job.update(func(p *Progress) { p.DocumentsLoaded++ })
	}
	return docs
}

// flatten returns prompt-ready sources, each cut to an equal share of the
// context budget, and the IDs of the documents that contributed.
func (w *Worker) flatten(ctx context.Context, job *Job, docs []store.Document) ([]ai.ContextDoc, []string) {
	type flat struct {
		doc  store.Document
		text string
	}
	var flats []flat
	for _, d := range docs {
		text := w.text.Text(ctx, d.Content)
		if strings.TrimSpace(text) == "" {
			job.AddError(fmt.Sprintf("document %s: no text", d.ID))
			continue
		}
		flats = append(flats, flat{doc: d, text: text})
		job.update(func(p *Progress) { p.DocumentsFlattened++ })
	}
	if len(flats) == 0 {
		return nil, nil
	}

	share := w.contextTokens / len(flats)
	sources := make([]ai.ContextDoc, 0, len(flats))
	ids := make([]string, 0, len(flats))
	total := 0
	for _, f := range flats {
		text := FitText(w.flattener, f.doc.Content, f.text, share)
		total += chunker.EstimateTokens(text)
		sources = append(sources, ai.ContextDoc{Title: f.doc.Title, Text: text})
		ids = append(ids, f.doc.ID)
	}
	job.update(func(p *Progress) { p.ContextTokens = total })
	return sources, ids
}

// FitText cuts a document's flattened text to about maxTokens. When the
// serialized document parses, sections are kept whole where possible and
// labelled with their heading path; otherwise the text is truncated. f should
// be the flattener that produced text; nil uses blocknote's defaults.
func FitText(f *blocknote.Flattener, serialized, text string, maxTokens int) string {
	if maxTokens <= 0 || chunker.EstimateTokens(text) <= maxTokens {
		return text
	}
	if f == nil {
		f = blocknote.NewFlattener(blocknote.Limits{}, nil)
	}
	blocks, err := f.Parse([]byte(serialized))
	if err != nil {
		return chunker.Truncate(text, maxTokens)
	}
	return chunker.Fit(blocks, maxTokens, f)
}

// PlaybookBlocks renders a playbook as an editor document: the summary as
// a paragraph, then one level-2 heading per section with the section body
// nested under it.
func PlaybookBlocks(pb *ai.Playbook) []blocknote.Block {
	var blocks []blocknote.Block
	if pb.Summary != "" {
		blocks = append(blocks, blocknote.Paragraph(pb.Summary))
	}
	for _, s := range pb.Sections {
		children := importer.FromMarkdown(s.Body)
		if len(s.Sources) > 0 {
			children = append(children, blocknote.Paragraph("Sources: "+strings.Join(s.Sources, "; ")))
		}
		blocks = append(blocks, blocknote.Heading(2, s.Heading, children...))
	}
	return blocks
}

// Complete calls the model, retrying retryable failures with backoff.
func Complete(ctx context.Context, c Completer, req ai.Request, backoff func(int) time.Duration, log *slog.Logger) (string, error) {
	if backoff == nil {
		backoff = Backoff
	}
	var (
		text    string
		lastErr error
	)
	for attempt := range MaxRetries {
		text, lastErr = c.Complete(ctx, req)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		log.Warn("retryable model error", "kind", req.Kind, "attempt", attempt, "error", lastErr)
		if attempt == MaxRetries-1 {
			break
		}
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, lastErr
}
