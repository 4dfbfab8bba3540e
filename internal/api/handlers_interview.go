package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tacivo/tacivo/internal/ai"
	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/importer"
	"github.com/tacivo/tacivo/internal/pipeline"
	"github.com/tacivo/tacivo/internal/store"
)

const (
	maxContextDocuments = 5
	chatMaxTokens       = 1024
	documentMaxTokens   = 8192
)

type interviewRequest struct {
	InvitationToken    string       `json:"invitation_token"`
	ExpertName         string       `json:"expert_name"`
	ExpertRole         string       `json:"expert_role"`
	Topic              string       `json:"topic"`
	Goal               string       `json:"goal"`
	Title              string       `json:"title"`
	Messages           []ai.Message `json:"messages"`
	ContextDocumentIDs []string     `json:"context_document_ids"`
}

// interviewSession is who an interview runs for: a signed-in user, or the
// sender of an accepted invitation when an expert follows the link.
type interviewSession struct {
	ownerID    string
	invitation *store.Invitation
	interview  ai.Interview
}

var errNoSession = errors.New("an X-User-ID header or invitation_token is required")

func (s *Server) resolveSession(r *http.Request, req *interviewRequest) (*interviewSession, error) {
	sess := &interviewSession{
		interview: ai.Interview{
			ExpertName: strings.TrimSpace(req.ExpertName),
			ExpertRole: strings.TrimSpace(req.ExpertRole),
			Topic:      strings.TrimSpace(req.Topic),
			Goal:       strings.TrimSpace(req.Goal),
		},
	}
	if req.InvitationToken == "" {
		sess.ownerID = userID(r)
		if sess.ownerID == "" {
			return nil, errNoSession
		}
		return sess, nil
	}

	inv, err := s.deps.Invitations.Lookup(r.Context(), req.InvitationToken)
	if err != nil {
		return nil, err
	}
	if inv.Status != store.InvitationAccepted {
		return nil, errInvitationNotActive
	}
	sess.ownerID = inv.SenderID
	sess.invitation = &inv
	sess.interview.Topic = inv.Topic
	if sess.interview.ExpertName == "" {
		sess.interview.ExpertName = inv.ExpertName
	}
	return sess, nil
}

var errInvitationNotActive = errors.New("invitation must be accepted before the interview")

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNoSession):
		jsonError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, errInvitationNotActive):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.writeServiceError(w, r, err)
	}
}

// loadContext flattens the requested background documents, each cut to an
// equal share of the context budget.
func (s *Server) loadContext(r *http.Request, ownerID string, ids []string) ([]ai.ContextDoc, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	docs, missing, err := s.deps.Store.GetDocuments(r.Context(), ownerID, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		s.log.Warn("context documents not found", "owner_id", ownerID, "missing", missing)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	share := s.cfg.PlaybookContextTokens / 2 / len(docs)
	out := make([]ai.ContextDoc, 0, len(docs))
	for _, d := range docs {
		text := s.deps.Text.Text(r.Context(), d.Content)
		if text == "" {
			continue
		}
		out = append(out, ai.ContextDoc{Title: d.Title, Text: pipeline.FitText(s.deps.Flattener, d.Content, text, share)})
	}
	return out, nil
}

// handleInterviewChat returns the interviewer's next turn.
func (s *Server) handleInterviewChat(w http.ResponseWriter, r *http.Request) {
	var req interviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.ContextDocumentIDs) > maxContextDocuments {
		jsonError(w, "too many context documents", http.StatusBadRequest)
		return
	}
	msgs, err := ai.NormalizeConversation(req.Messages)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := s.resolveSession(r, &req)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if sess.interview.Topic == "" {
		jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}
	sess.interview.Context, err = s.loadContext(r, sess.ownerID, req.ContextDocumentIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	reply, err := pipeline.Complete(r.Context(), s.deps.Claude, ai.Request{
		Kind:      "interview",
		System:    ai.InterviewSystemPrompt(sess.interview),
		Messages:  msgs,
		MaxTokens: chatMaxTokens,
	}, nil, s.log)
	if err != nil {
		s.log.Error("interview chat failed", "owner_id", sess.ownerID, "error", err)
		jsonError(w, "the interviewer is unavailable, please retry", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": ai.Message{Role: ai.RoleAssistant, Content: strings.TrimSpace(reply)},
	})
}

// handleInterviewDocument writes up an interview transcript as a stored
// document. Under an invitation the invitation is completed as well.
func (s *Server) handleInterviewDocument(w http.ResponseWriter, r *http.Request) {
	var req interviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	transcript, err := ai.NormalizeTranscript(req.Messages)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(transcript) < 2 {
		jsonError(w, "transcript is too short to write up", http.StatusBadRequest)
		return
	}
	sess, err := s.resolveSession(r, &req)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	md, err := pipeline.Complete(r.Context(), s.deps.Claude, ai.Request{
		Kind:      "document",
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: ai.DocumentPrompt(sess.interview, transcript)}},
		MaxTokens: documentMaxTokens,
	}, nil, s.log)
	if err != nil {
		s.log.Error("document synthesis failed", "owner_id", sess.ownerID, "error", err)
		jsonError(w, "could not write the document, please retry", http.StatusBadGateway)
		return
	}

	title, blocks := documentFromMarkdown(ai.CleanMarkdown(md))
	if t := strings.TrimSpace(req.Title); t != "" {
		title = t
	}
	if title == "" {
		title = sess.interview.Topic
	}
	content, err := blocknote.Marshal(blocks)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	source := ""
	if sess.invitation != nil {
		source = "invitation:" + sess.invitation.ID
	}
	doc, err := s.deps.Store.CreateDocument(r.Context(), store.Document{
		OwnerID: sess.ownerID,
		Title:   title,
		Type:    store.DocumentInterview,
		Source:  source,
		Content: string(content),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"document": toDocumentResponse(doc)}
	if sess.invitation != nil {
		inv, err := s.deps.Invitations.Complete(r.Context(), req.InvitationToken, doc.ID)
		if err != nil {
			s.log.Warn("complete invitation failed", "invitation_id", sess.invitation.ID, "error", err)
		} else {
			resp["invitation"] = inv
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// documentFromMarkdown converts model output to blocks, lifting a leading
// level-1 heading out as the title. The heading's children stay in the body.
func documentFromMarkdown(md string) (string, []blocknote.Block) {
	blocks := importer.FromMarkdown(md)
	if len(blocks) > 0 && blocks[0].HeadingLevel() == 1 {
		title := blocks[0].Text()
		rest := append(append([]blocknote.Block{}, blocks[0].Children...), blocks[1:]...)
		return title, rest
	}
	return "", blocks
}
