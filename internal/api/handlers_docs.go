package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/importer"
	"github.com/tacivo/tacivo/internal/store"
)

const maxTitleLen = 300

var documentTypes = map[string]bool{
	store.DocumentNote:      true,
	store.DocumentInterview: true,
	store.DocumentImport:    true,
	store.DocumentPlaybook:  true,
}

// documentResponse carries content as raw JSON rather than a quoted string.
type documentResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	Source    string          `json:"source,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toDocumentResponse(d store.Document) documentResponse {
	resp := documentResponse{
		ID:        d.ID,
		Title:     d.Title,
		Type:      d.Type,
		Source:    d.Source,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Content != "" {
		resp.Content = json.RawMessage(d.Content)
	}
	return resp
}

type documentRequest struct {
	Title   string          `json:"title"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// normalizeContent checks that raw is an editor document and returns it as
// sent, so block and span fields the flattener ignores are stored intact.
// Absent content is an empty document.
func normalizeContent(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "[]", nil
	}
	if _, err := blocknote.Parse(trimmed); err != nil {
		return "", err
	}
	return string(trimmed), nil
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if len(req.Title) > maxTitleLen {
		jsonError(w, "title is too long", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = store.DocumentNote
	}
	if !documentTypes[req.Type] {
		jsonError(w, fmt.Sprintf("unknown document type %q", req.Type), http.StatusBadRequest)
		return
	}
	content, err := normalizeContent(req.Content)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := s.deps.Store.CreateDocument(r.Context(), store.Document{
		OwnerID: userID(r),
		Title:   req.Title,
		Type:    req.Type,
		Content: content,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Store.ListDocuments(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Store.GetDocument(r.Context(), userID(r), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDocumentText returns the plain text of a document.
func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Store.GetDocument(r.Context(), userID(r), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    doc.ID,
		"title": doc.Title,
		"text":  s.deps.Text.Text(r.Context(), doc.Content),
	})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if len(req.Title) > maxTitleLen {
		jsonError(w, "title is too long", http.StatusBadRequest)
		return
	}
	content, err := normalizeContent(req.Content)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "docID")
	updated, err := s.deps.Store.UpdateDocumentContent(r.Context(), userID(r), id, req.Title, content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "updated_at": updated})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteDocument(r.Context(), userID(r), chi.URLParam(r, "docID")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportDocument converts an uploaded file into a stored document.
func (s *Server) handleImportDocument(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	imp, err := importer.ForFile(filename, importer.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	limited := io.LimitReader(file, s.cfg.MaxUploadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	imported, err := imp.Import(bytes.NewReader(data), filename)
	if err != nil {
		s.log.Warn("import failed", "filename", filename, "error", err)
		jsonError(w, "could not read file: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if len(imported.Blocks) == 0 {
		jsonError(w, "file contains no text", http.StatusUnprocessableEntity)
		return
	}

	content, err := blocknote.Marshal(imported.Blocks)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = imported.Title
	}

	doc, err := s.deps.Store.CreateDocument(r.Context(), store.Document{
		OwnerID: userID(r),
		Title:   title,
		Type:    store.DocumentImport,
		Source:  filename,
		Content: string(content),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}
