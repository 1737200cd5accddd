package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/bosley/signspeak/capture"
	"github.com/bosley/signspeak/events"
	"github.com/bosley/signspeak/settings"
	"github.com/bosley/signspeak/signs"
	"github.com/bosley/signspeak/speech"
)

type sessionResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	History any `json:"history,omitempty"`
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	id, entries, err := s.deps.Gate.Admit(r.Context(), bearerToken(r))
	if err != nil {
		slog.Warn("Session admission refused", "error", err)
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var resp sessionResponse
	resp.User.ID = id.UserID
	resp.User.Email = id.Email
	resp.History = entries
	s.deps.Hub.Publish(events.New(events.TypeSession, id.UserID, "admitted"))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	var resp sessionResponse
	resp.User.ID = id.UserID
	resp.User.Email = id.Email
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.deps.Gate.Revoke()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Capture.Snapshot())
}

func captureStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, capture.ErrCaptureInFlight),
		errors.Is(err, capture.ErrInvalidTransition),
		errors.Is(err, capture.ErrSessionEnded),
		errors.Is(err, capture.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrClassification):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Capture.Capture(r.Context())
	if errors.Is(err, capture.ErrClassification) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"result": out.Result,
			"state":  s.deps.Capture.Snapshot(),
		})
		return
	}
	if err != nil {
		writeJSON(w, captureStatus(err), map[string]any{
			"error": err.Error(),
			"state": s.deps.Capture.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Capture.Start(); err != nil {
		writeError(w, captureStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Capture.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Capture.Stop()
	writeJSON(w, http.StatusOK, s.deps.Capture.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Capture.Retry(r.Context()); err != nil {
		writeJSON(w, captureStatus(err), map[string]any{
			"error": err.Error(),
			"state": s.deps.Capture.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Capture.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.deps.History.Entries()})
}

func (s *Server) handlePersistedHistory(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	entries := s.deps.History.LoadPersisted(id.Context(), id.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"translations": entries,
		"history":      s.deps.History.Entries(),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.deps.History.Clear()
	s.deps.Hub.Publish(events.New(events.TypeHistory, identityFrom(r).UserID, "cleared"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.deps.History.Find(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "History entry not found")
		return
	}
	s.deps.Speech.Speak(entry.Label, s.deps.Settings.Profile())
	writeJSON(w, http.StatusAccepted, map[string]string{"speaking": entry.Label})
}

type speakRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	s.deps.Speech.Speak(req.Text, s.deps.Settings.Profile())
	writeJSON(w, http.StatusAccepted, map[string]string{"speaking": req.Text})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Current())
}

func settingsStatus(err error) int {
	if errors.Is(err, speech.ErrInvalidProfile) || errors.Is(err, settings.ErrInvalidSettings) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	// Fields left out of the body keep their current values.
	next := s.deps.Settings.Current()
	if err := decodeJSON(w, r, &next); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.deps.Settings.Update(next)
	if err != nil {
		if settingsStatus(err) == http.StatusInternalServerError {
			slog.Error("Failed to save settings", "error", err)
		}
		writeError(w, settingsStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	updated, err := s.deps.Settings.Reset()
	if err != nil {
		slog.Error("Failed to reset settings", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleTestVoice previews the stored profile, or the unsaved profile in
// the request body when one is sent.
func (s *Server) handleTestVoice(w http.ResponseWriter, r *http.Request) {
	profile := s.deps.Settings.Profile()
	if err := decodeJSON(w, r, &profile); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := profile.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.deps.Speech.TestVoice(profile)
	writeJSON(w, http.StatusAccepted, map[string]string{"speaking": speech.TestPhrase})
}

func (s *Server) handleSigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": signs.Categories()})
}

// handleWebSocket subscribes to the admitted user's events. Browsers cannot
// set headers on the upgrade, so the token may come as ?token=.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	id, err := s.deps.Gate.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.deps.Hub.ServeWS(w, r, id.UserID)
}
