package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tacivo/tacivo/internal/invitation"
	"github.com/tacivo/tacivo/internal/store"
)

type createInvitationRequest struct {
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	ExpertName  string `json:"expert_name"`
	ExpertEmail string `json:"expert_email"`
	Topic       string `json:"topic"`
	Message     string `json:"message"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	inv, err := s.deps.Invitations.Create(r.Context(), invitation.CreateInput{
		SenderID:    userID(r),
		SenderName:  req.SenderName,
		SenderEmail: req.SenderEmail,
		ExpertName:  req.ExpertName,
		ExpertEmail: req.ExpertEmail,
		Topic:       req.Topic,
		Message:     req.Message,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := s.deps.Invitations.List(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if invs == nil {
		invs = []store.Invitation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

func (s *Server) handleGetInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invitations.Lookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invitations.Accept(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invitations.Decline(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCompleteInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		jsonError(w, "document_id is required", http.StatusBadRequest)
		return
	}
	inv, err := s.deps.Invitations.Complete(r.Context(), chi.URLParam(r, "token"), req.DocumentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
