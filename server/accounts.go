package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bosley/signspeak/auth"
	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/history"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	Message string       `json:"message"`
	User    auth.Account `json:"user"`
	Token   string       `json:"token"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := s.deps.DB.Ping(r.Context()); err != nil {
		slog.Warn("Database ping failed", "error", err)
		dbStatus = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
	})
}

func accountStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrMissingFields),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrUserExists),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func accountMessage(err error) string {
	msg := err.Error()
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := s.deps.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		status := accountStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Registration failed", "error", err)
			writeError(w, status, "Registration failed")
			return
		}
		writeError(w, status, accountMessage(err))
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		Message: "User registered successfully",
		User:    acct,
		Token:   acct.Token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status := accountStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Login failed", "error", err)
			writeError(w, status, "Login failed")
			return
		}
		writeError(w, status, accountMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Message: "Login successful",
		User:    acct,
		Token:   acct.Token,
	})
}

type translationRequest struct {
	UserID      string `json:"userId"`
	Prediction  string `json:"prediction"`
	Confidence  *int   `json:"confidence"`
	Description string `json:"description"`
}

// tokenOwner checks that the bearer token was issued to userID. These
// routes work without an admitted session.
func (s *Server) tokenOwner(w http.ResponseWriter, r *http.Request, userID string) bool {
	claims, err := s.deps.Auth.Verify(bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return false
	}
	if claims.UserID != userID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return false
	}
	return true
}

func (s *Server) handleSaveTranslation(w http.ResponseWriter, r *http.Request) {
	var req translationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Prediction == "" || req.Confidence == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !s.tokenOwner(w, r, req.UserID) {
		return
	}

	res := classifier.Result{
		Label:       req.Prediction,
		Confidence:  *req.Confidence,
		Description: req.Description,
		CapturedAt:  time.Now(),
	}
	if err := s.deps.Translations.Append(r.Context(), req.UserID, res); err != nil {
		slog.Error("Failed to save translation", "error", err, "userID", req.UserID)
		writeError(w, http.StatusInternalServerError, "Failed to save translation")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "Translation saved",
		"translation": res,
	})
}

func (s *Server) handleListTranslations(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if !s.tokenOwner(w, r, userID) {
		return
	}

	results, err := s.deps.Translations.ListRecent(r.Context(), userID, history.PersistedLimit)
	if err != nil {
		slog.Error("Failed to list translations", "error", err, "userID", userID)
		writeError(w, http.StatusInternalServerError, "Failed to load translations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"translations": results})
}
