package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tacivo/tacivo/internal/ai"
	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]store.Document
	getErr    error
	created   []store.Playbook
	createErr error
}

func (f *fakeStore) GetDocument(_ context.Context, ownerID, id string) (store.Document, error) {
	if f.getErr != nil {
		return store.Document{}, f.getErr
	}
	d, ok := f.docs[id]
	if !ok || d.OwnerID != ownerID {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) CreatePlaybook(_ context.Context, pb store.Playbook) (store.Playbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return store.Playbook{}, f.createErr
	}
	pb.ID = "pb-1"
	f.created = append(f.created, pb)
	return pb, nil
}

type fakeClaude struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []ai.Request
}

func (f *fakeClaude) Complete(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func (f *fakeClaude) Model() string { return "claude-test" }

type flattenText struct{}

func (flattenText) Text(_ context.Context, serialized string) string {
	return blocknote.FlattenSerialized(serialized)
}

const playbookJSON = `{"title":"Model title","summary":"How we commission boilers.","sections":[` +
	`{"heading":"Before you start","body":"- Check the gas supply\n- Bleed radiators","sources":["Winter checks"]},` +
	`{"heading":"Firing up","body":"Light the pilot and wait two minutes.","sources":[]}]}`

func doc(id, title, text string) store.Document {
	content, _ := blocknote.Marshal([]blocknote.Block{blocknote.Paragraph(text)})
	return store.Document{ID: id, OwnerID: "u1", Title: title, Content: string(content)}
}

func newTestWorker(st *fakeStore, claude *fakeClaude, contextTokens int) *Worker {
	w := NewWorker(st, claude, flattenText{}, nil, discardLogger(), contextTokens)
	w.backoff = func(int) time.Duration { return 0 }
	return w
}

func TestWorker_Completed(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{
		"a": doc("a", "Winter checks", "Bleed every radiator before the first cold night."),
		"b": doc("b", "Pilot lights", "Wait two minutes after lighting."),
	}}
	claude := &fakeClaude{replies: []string{"```json\n" + playbookJSON + "\n```"}}
	job := NewJob("u1", "", []string{"a", "b"})

	newTestWorker(st, claude, 0).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.PlaybookID != "pb-1" || snap.Progress.Sections != 2 || snap.Progress.DocumentsFlattened != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if len(st.created) != 1 {
		t.Fatalf("expected one stored playbook, got %d", len(st.created))
	}
	pb := st.created[0]
	if pb.Title != "Model title" || pb.Model != "claude-test" || strings.Join(pb.SourceDocumentIDs, ",") != "a,b" {
		t.Errorf("unexpected playbook %+v", pb)
	}
	text := blocknote.FlattenSerialized(pb.Content)
	for _, want := range []string{"How we commission boilers.", "Before you start", "Check the gas supply", "Sources: Winter checks"} {
		if !strings.Contains(text, want) {
			t.Errorf("stored playbook text missing %q:\n%s", want, text)
		}
	}

	prompt := claude.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "Bleed every radiator") || !strings.Contains(prompt, `title="Pilot lights"`) {
		t.Errorf("prompt missing document text:\n%s", prompt)
	}
	if claude.requests[0].Kind != "playbook" {
		t.Errorf("expected playbook kind, got %q", claude.requests[0].Kind)
	}
}

func TestWorker_RequestedTitleWins(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}}
	job := NewJob("u1", "Boiler playbook", []string{"a"})

	newTestWorker(st, &fakeClaude{replies: []string{playbookJSON}}, 0).Process(context.Background(), job)

	if st.created[0].Title != "Boiler playbook" {
		t.Errorf("expected requested title, got %q", st.created[0].Title)
	}
}

func TestWorker_PartialWhenSomeDocumentsMissing(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{
		"a":     doc("a", "A", "useful text"),
		"empty": {ID: "empty", OwnerID: "u1", Title: "Empty", Content: "[]"},
		"other": {ID: "other", OwnerID: "someone-else", Content: "[]"},
	}}
	job := NewJob("u1", "", []string{"a", "missing", "empty", "other"})

	newTestWorker(st, &fakeClaude{replies: []string{playbookJSON}}, 0).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected partial, got %q", snap.Status)
	}
	if len(snap.Progress.Errors) != 3 {
		t.Errorf("expected 3 errors, got %v", snap.Progress.Errors)
	}
	if got := st.created[0].SourceDocumentIDs; len(got) != 1 || got[0] != "a" {
		t.Errorf("expected only contributing sources, got %v", got)
	}
}

func TestWorker_FailsWithoutDocuments(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{}}
	claude := &fakeClaude{replies: []string{playbookJSON}}
	job := NewJob("u1", "", []string{"x"})

	newTestWorker(st, claude, 0).Process(context.Background(), job)

	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected failed, got %q", job.Snapshot().Status)
	}
	if len(claude.requests) != 0 {
		t.Error("expected no model call")
	}
}

func TestWorker_FailsWhenAllDocumentsEmpty(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": {ID: "a", OwnerID: "u1", Content: "not json"}}}
	job := NewJob("u1", "", []string{"a"})

	newTestWorker(st, &fakeClaude{replies: []string{playbookJSON}}, 0).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "flattening" {
		t.Errorf("expected failure while flattening, got %q/%q", snap.Status, snap.Phase)
	}
}

func TestWorker_RetriesRetryableErrors(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}}
	claude := &fakeClaude{
		errs:    []error{&ai.RetryableError{StatusCode: 529}, &ai.RetryableError{StatusCode: 429}},
		replies: []string{playbookJSON},
	}
	job := NewJob("u1", "", []string{"a"})

	newTestWorker(st, claude, 0).Process(context.Background(), job)

	if job.Snapshot().Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %q", job.Snapshot().Status)
	}
	if len(claude.requests) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(claude.requests))
	}
}

func TestWorker_GivesUpAfterMaxRetries(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}}
	retry := &ai.RetryableError{StatusCode: 503}
	claude := &fakeClaude{errs: []error{retry, retry, retry, retry}, replies: []string{playbookJSON}}
	job := NewJob("u1", "", []string{"a"})

	newTestWorker(st, claude, 0).Process(context.Background(), job)

	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected failed, got %q", job.Snapshot().Status)
	}
	if len(claude.requests) != MaxRetries {
		t.Errorf("expected %d attempts, got %d", MaxRetries, len(claude.requests))
	}
}

func TestWorker_NonRetryableFailsImmediately(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}}
	claude := &fakeClaude{errs: []error{errors.New("bad request")}, replies: []string{playbookJSON}}
	job := NewJob("u1", "", []string{"a"})

	newTestWorker(st, claude, 0).Process(context.Background(), job)

	if len(claude.requests) != 1 || job.Snapshot().Status != StatusFailed {
		t.Errorf("expected one attempt and failure, got %d/%q", len(claude.requests), job.Snapshot().Status)
	}
}

func TestWorker_InvalidModelOutput(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}}
	job := NewJob("u1", "", []string{"a"})

	newTestWorker(st, &fakeClaude{replies: []string{"I cannot help with that."}}, 0).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || len(st.created) != 0 {
		t.Errorf("expected failure without storing, got %q", snap.Status)
	}
}

func TestWorker_StoreFailure(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}, createErr: errors.New("db down")}
	job := NewJob("u1", "", []string{"a"})

	newTestWorker(st, &fakeClaude{replies: []string{playbookJSON}}, 0).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "storing" {
		t.Errorf("expected storing failure, got %q/%q", snap.Status, snap.Phase)
	}
}

func TestWorker_TruncatesToContextBudget(t *testing.T) {
	long := strings.Repeat("word ", 3000)
	st := &fakeStore{docs: map[string]store.Document{
		"a": doc("a", "A", long),
		"b": doc("b", "B", long),
	}}
	claude := &fakeClaude{replies: []string{playbookJSON}}
	job := NewJob("u1", "", []string{"a", "b"})

	newTestWorker(st, claude, 1000).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Progress.ContextTokens > 1000 {
		t.Errorf("expected context within budget, got %d tokens", snap.Progress.ContextTokens)
	}
	if !strings.Contains(claude.requests[0].Messages[0].Content, "[…truncated]") {
		t.Error("expected truncation marker in prompt")
	}
}

func TestComplete_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claude := &fakeClaude{errs: []error{&ai.RetryableError{StatusCode: 529}}, replies: []string{"x"}}

	_, err := Complete(ctx, claude, ai.Request{Messages: []ai.Message{{Role: "user", Content: "hi"}}},
		func(int) time.Duration { return time.Hour }, discardLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPlaybookBlocks(t *testing.T) {
	pb := &ai.Playbook{
		Summary:  "Summary.",
		Sections: []ai.Section{{Heading: "Step one", Body: "Do it.", Sources: []string{"Doc A"}}},
	}
	blocks := PlaybookBlocks(pb)
	if len(blocks) != 2 {
		t.Fatalf("expected summary + 1 heading, got %d", len(blocks))
	}
	if blocks[1].HeadingLevel() != 2 || blocks[1].Text() != "Step one" {
		t.Errorf("unexpected heading block %+v", blocks[1])
	}
	if got := blocknote.Flatten(blocks); got != "Summary.\n\nStep one\n\nDo it.\n\nSources: Doc A" {
		t.Errorf("unexpected flattened text %q", got)
	}
}

func TestFitText(t *testing.T) {
	short := doc("a", "A", "Short note.")
	if got := FitText(nil, short.Content, "Short note.", 100); got != "Short note." {
		t.Errorf("expected text under budget unchanged, got %q", got)
	}

	content, _ := blocknote.Marshal([]blocknote.Block{
		blocknote.Heading(1, "Startup", blocknote.Paragraph(strings.Repeat("gauge ", 400))),
	})
	text := blocknote.FlattenSerialized(string(content))
	got := FitText(nil, string(content), text, 50)
	if !strings.HasPrefix(got, "[Startup]") {
		t.Errorf("expected heading path label, got %q", got[:30])
	}
	if !strings.HasSuffix(got, "[…truncated]") {
		t.Error("expected truncation marker")
	}

	if got := FitText(nil, "not json", text, 50); strings.Contains(got, "[Startup]") {
		t.Error("expected plain truncation for unparseable content")
	}
}

func TestFitText_UsesFlattenerLimits(t *testing.T) {
	step := blocknote.BulletItem("Open the valve.")
	step.Children = []blocknote.Block{blocknote.Paragraph(strings.Repeat("gauge ", 400))}
	content, _ := blocknote.Marshal([]blocknote.Block{blocknote.Heading(1, "Startup", step)})

	shallow := blocknote.NewFlattener(blocknote.Limits{MaxDepth: 2}, discardLogger())
	text := strings.Repeat("filler ", 400)
	got := FitText(shallow, string(content), text, 50)
	if got != "[Startup]\nOpen the valve." {
		t.Errorf("expected nested detail cut by the configured depth, got %q", got)
	}
}
