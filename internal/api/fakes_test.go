package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tacivo/tacivo/internal/ai"
	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/cache"
	"github.com/tacivo/tacivo/internal/config"
	"github.com/tacivo/tacivo/internal/invitation"
	"github.com/tacivo/tacivo/internal/pipeline"
	"github.com/tacivo/tacivo/internal/store"
)

const testAPIKey = "test-key"

type memStore struct {
	mu        sync.Mutex
	docs      map[string]store.Document
	playbooks map[string]store.Playbook
	seq       int
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]store.Document{}, playbooks: map[string]store.Playbook{}}
}

func (m *memStore) CreateDocument(_ context.Context, doc store.Document) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	doc.ID = fmt.Sprintf("doc-%d", m.seq)
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *memStore) GetDocument(_ context.Context, ownerID, id string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.OwnerID != ownerID {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (m *memStore) GetDocuments(ctx context.Context, ownerID string, ids []string) ([]store.Document, []string, error) {
	var docs []store.Document
	var missing []string
	for _, id := range ids {
		d, err := m.GetDocument(ctx, ownerID, id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		docs = append(docs, d)
	}
	return docs, missing, nil
}

func (m *memStore) ListDocuments(_ context.Context, ownerID string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Document
	for _, d := range m.docs {
		if d.OwnerID == ownerID {
			d.Content = ""
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) UpdateDocumentContent(_ context.Context, ownerID, id, title, content string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.OwnerID != ownerID {
		return time.Time{}, store.ErrNotFound
	}
	if title != "" {
		d.Title = title
	}
	d.Content = content
	d.UpdatedAt = time.Now()
	m.docs[id] = d
	return d.UpdatedAt, nil
}

func (m *memStore) DeleteDocument(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memStore) GetPlaybook(_ context.Context, ownerID, id string) (store.Playbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pb, ok := m.playbooks[id]
	if !ok || pb.OwnerID != ownerID {
		return store.Playbook{}, store.ErrNotFound
	}
	return pb, nil
}

func (m *memStore) ListPlaybooks(_ context.Context, ownerID string) ([]store.Playbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Playbook
	for _, pb := range m.playbooks {
		if pb.OwnerID == ownerID {
			out = append(out, pb)
		}
	}
	return out, nil
}

type fakeInvitations struct {
	mu        sync.Mutex
	byToken   map[string]store.Invitation
	completed map[string]string
}

func newFakeInvitations(invs ...store.Invitation) *fakeInvitations {
	f := &fakeInvitations{byToken: map[string]store.Invitation{}, completed: map[string]string{}}
	for _, inv := range invs {
		f.byToken[inv.Token] = inv
	}
	return f
}

func (f *fakeInvitations) Create(_ context.Context, in invitation.CreateInput) (store.Invitation, error) {
	if in.Topic == "" {
		return store.Invitation{}, invitation.ErrInvalidInput
	}
	inv := store.Invitation{ID: "inv-1", Token: "tok-new", SenderID: in.SenderID, Topic: in.Topic, Status: store.InvitationPending}
	f.mu.Lock()
	f.byToken[inv.Token] = inv
	f.mu.Unlock()
	return inv, nil
}

func (f *fakeInvitations) Lookup(_ context.Context, token string) (store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok {
		return store.Invitation{}, store.ErrNotFound
	}
	return inv, nil
}

func (f *fakeInvitations) List(_ context.Context, senderID string) ([]store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Invitation
	for _, inv := range f.byToken {
		if inv.SenderID == senderID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeInvitations) move(token, from, to string) (store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok {
		return store.Invitation{}, store.ErrNotFound
	}
	if inv.Status != from {
		return store.Invitation{}, invitation.ErrInvalidTransition
	}
	inv.Status = to
	f.byToken[token] = inv
	return inv, nil
}

func (f *fakeInvitations) Accept(_ context.Context, token string) (store.Invitation, error) {
	return f.move(token, store.InvitationPending, store.InvitationAccepted)
}

func (f *fakeInvitations) Decline(_ context.Context, token string) (store.Invitation, error) {
	return f.move(token, store.InvitationPending, store.InvitationDeclined)
}

func (f *fakeInvitations) Complete(_ context.Context, token, documentID string) (store.Invitation, error) {
	inv, err := f.move(token, store.InvitationAccepted, store.InvitationCompleted)
	if err != nil {
		return inv, err
	}
	f.mu.Lock()
	f.completed[token] = documentID
	f.mu.Unlock()
	inv.DocumentID = &documentID
	return inv, nil
}

type fakePlaybooks struct {
	mu   sync.Mutex
	jobs map[string]*pipeline.Job
	err  error
}

func (f *fakePlaybooks) Submit(job *pipeline.Job) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobs == nil {
		f.jobs = map[string]*pipeline.Job{}
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakePlaybooks) GetJob(id string) *pipeline.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func (f *fakePlaybooks) QueueDepth() int { return len(f.jobs) }

type fakeClaude struct {
	mu      sync.Mutex
	reply   string
	err     error
	request []ai.Request
}

func (f *fakeClaude) Complete(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.request = append(f.request, req)
	return f.reply, f.err
}

func (f *fakeClaude) Model() string { return "test-model" }

func (f *fakeClaude) last() ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.request[len(f.request)-1]
}

type fakeSpeaker struct {
	configured bool
	audio      []byte
	err        error
}

func (f *fakeSpeaker) IsConfigured() bool { return f.configured }

func (f *fakeSpeaker) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

type harness struct {
	srv         *Server
	store       *memStore
	invitations *fakeInvitations
	playbooks   *fakePlaybooks
	claude      *fakeClaude
	speech      *fakeSpeaker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:       newMemStore(),
		invitations: newFakeInvitations(),
		playbooks:   &fakePlaybooks{},
		claude:      &fakeClaude{},
		speech:      &fakeSpeaker{},
	}
	cfg := config.Config{
		TacivoAPIKey:          testAPIKey,
		MaxUploadBytes:        1 << 20,
		PlaybookContextTokens: 1000,
	}
	flattener := blocknote.NewFlattener(blocknote.DefaultLimits(), log)
	h.srv = NewServer(Deps{
		Store:       h.store,
		Invitations: h.invitations,
		Playbooks:   h.playbooks,
		Claude:      h.claude,
		Stats:       ai.NewLLMStats(time.Hour),
		Text:        cache.NewFlattener(cache.Noop{}, flattener),
		Flattener:   flattener,
		Speech:      h.speech,
	}, log, cfg)
	return h
}

// do sends a request as user "u1" unless user is overridden by header.
func (h *harness) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("X-User-ID", "u1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] == "" {
			req.Header.Del(headers[i])
			continue
		}
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

var _ http.Handler = (*Server)(nil)
