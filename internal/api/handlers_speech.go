package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tacivo/tacivo/internal/speech"
)

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.deps.Speech == nil || !s.deps.Speech.IsConfigured() {
		jsonError(w, "speech is not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	audio, err := s.deps.Speech.Synthesize(r.Context(), req.Text)
	switch {
	case errors.Is(err, speech.ErrEmptyText), errors.Is(err, speech.ErrTextTooLong):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error("speech synthesis failed", "user_id", userID(r), "error", err)
		jsonError(w, "speech synthesis failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
