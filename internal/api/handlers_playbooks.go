package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tacivo/tacivo/internal/pipeline"
	"github.com/tacivo/tacivo/internal/store"
)

const maxPlaybookDocuments = 20

type createPlaybookRequest struct {
	Title       string   `json:"title"`
	DocumentIDs []string `json:"document_ids"`
}

func (s *Server) handleCreatePlaybook(w http.ResponseWriter, r *http.Request) {
	var req createPlaybookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ids := dedupeIDs(req.DocumentIDs)
	switch {
	case len(ids) == 0:
		jsonError(w, "document_ids is required", http.StatusBadRequest)
		return
	case len(ids) > maxPlaybookDocuments:
		jsonError(w, "too many documents", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(userID(r), strings.TrimSpace(req.Title), ids)
	if err := s.deps.Playbooks.Submit(job); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrStopped) {
			w.Header().Set("Retry-After", "30")
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.ID,
		"status":   string(pipeline.StatusQueued),
		"poll_url": "/api/playbooks/jobs/" + job.ID,
	})
}

func (s *Server) handlePlaybookJob(w http.ResponseWriter, r *http.Request) {
	job := s.deps.Playbooks.GetJob(chi.URLParam(r, "jobID"))
	if job == nil || job.UserID != userID(r) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	pbs, err := s.deps.Store.ListPlaybooks(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if pbs == nil {
		pbs = []store.Playbook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": pbs})
}

func (s *Server) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, err := s.deps.Store.GetPlaybook(r.Context(), userID(r), chi.URLParam(r, "playbookID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pb)
}

// dedupeIDs trims ids and drops blanks and repeats, keeping first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
