package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tacivo/tacivo/internal/ai"
	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/config"
	"github.com/tacivo/tacivo/internal/invitation"
	"github.com/tacivo/tacivo/internal/pipeline"
	"github.com/tacivo/tacivo/internal/store"
)

// Store is the persistence used by the handlers.
type Store interface {
	CreateDocument(ctx context.Context, doc store.Document) (store.Document, error)
	GetDocument(ctx context.Context, ownerID, id string) (store.Document, error)
	GetDocuments(ctx context.Context, ownerID string, ids []string) ([]store.Document, []string, error)
	ListDocuments(ctx context.Context, ownerID string) ([]store.Document, error)
	UpdateDocumentContent(ctx context.Context, ownerID, id, title, content string) (time.Time, error)
	DeleteDocument(ctx context.Context, ownerID, id string) error
	GetPlaybook(ctx context.Context, ownerID, id string) (store.Playbook, error)
	ListPlaybooks(ctx context.Context, ownerID string) ([]store.Playbook, error)
}

// Invitations is the invitation lifecycle.
type Invitations interface {
	Create(ctx context.Context, in invitation.CreateInput) (store.Invitation, error)
	Lookup(ctx context.Context, token string) (store.Invitation, error)
	List(ctx context.Context, senderID string) ([]store.Invitation, error)
	Accept(ctx context.Context, token string) (store.Invitation, error)
	Decline(ctx context.Context, token string) (store.Invitation, error)
	Complete(ctx context.Context, token, documentID string) (store.Invitation, error)
}

// Playbooks queues synthesis jobs.
type Playbooks interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
	QueueDepth() int
}

// Speaker converts text to audio.
type Speaker interface {
	IsConfigured() bool
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Deps are the services behind the API.
type Deps struct {
	Store       Store
	Invitations Invitations
	Playbooks   Playbooks
	Claude      pipeline.Completer
	Stats       *ai.LLMStats
	Text        pipeline.TextSource
	Flattener   *blocknote.Flattener // behind Text; nil uses the defaults
	Speech      Speaker
}

// Server is the HTTP API server for Tacivo.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.TacivoAPIKey, s.log))

		// Invitation links are followed by experts without an account.
		r.Get("/api/invitations/{token}", s.handleGetInvitation)
		r.Post("/api/invitations/{token}/accept", s.handleAcceptInvitation)
		r.Post("/api/invitations/{token}/decline", s.handleDeclineInvitation)
		r.Post("/api/invitations/{token}/complete", s.handleCompleteInvitation)

		// Interviews run either for a signed-in user or under an invitation.
		r.Post("/api/interviews/chat", s.handleInterviewChat)
		r.Post("/api/interviews/document", s.handleInterviewDocument)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Post("/api/documents", s.handleCreateDocument)
			r.Get("/api/documents", s.handleListDocuments)
			r.Post("/api/documents/import", s.handleImportDocument)
			r.Get("/api/documents/{docID}", s.handleGetDocument)
			r.Get("/api/documents/{docID}/text", s.handleDocumentText)
			r.Put("/api/documents/{docID}", s.handleUpdateDocument)
			r.Delete("/api/documents/{docID}", s.handleDeleteDocument)

			r.Post("/api/invitations", s.handleCreateInvitation)
			r.Get("/api/invitations", s.handleListInvitations)

			r.Post("/api/playbooks", s.handleCreatePlaybook)
			r.Get("/api/playbooks", s.handleListPlaybooks)
			r.Get("/api/playbooks/jobs/{jobID}", s.handlePlaybookJob)
			r.Get("/api/playbooks/{playbookID}", s.handleGetPlaybook)

			r.Post("/api/speech", s.handleSpeech)
		})

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.deps.Playbooks != nil {
		resp["queue_depth"] = s.deps.Playbooks.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}
