// Package server exposes the pipeline over HTTP: account and translation
// routes, the session-gated /api surface, live events over websocket and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bosley/signspeak/auth"
	"github.com/bosley/signspeak/capture"
	"github.com/bosley/signspeak/events"
	"github.com/bosley/signspeak/history"
	"github.com/bosley/signspeak/metrics"
	"github.com/bosley/signspeak/session"
	"github.com/bosley/signspeak/settings"
	"github.com/bosley/signspeak/speech"
)

type Config struct {
	Addr     string
	CertFile string
	KeyFile  string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth         *auth.Service
	DB           Pinger
	Translations history.Log
	Gate         *session.Gate
	Capture      *capture.Controller
	History      *history.Store
	Settings     *settings.Manager
	Speech       *speech.Feedback
	Hub          *events.Hub
}

type Server struct {
	cfg  Config
	deps Deps
	http *http.Server
}

func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/register", s.handleRegister).Methods("POST")
	router.HandleFunc("/login", s.handleLogin).Methods("POST")
	router.HandleFunc("/translations", s.handleSaveTranslation).Methods("POST")
	router.HandleFunc("/translations/{userId}", s.handleListTranslations).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	router.HandleFunc("/api/session", s.handleAdmit).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.requireSession)
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/session", s.handleRevoke).Methods("DELETE")
	api.HandleFunc("/capture", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/capture", s.handleCapture).Methods("POST")
	api.HandleFunc("/capture/start", s.handleStart).Methods("POST")
	api.HandleFunc("/capture/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/capture/retry", s.handleRetry).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")
	api.HandleFunc("/history/persisted", s.handlePersistedHistory).Methods("GET")
	api.HandleFunc("/history/{id}/speak", s.handleReplay).Methods("POST")
	api.HandleFunc("/speak", s.handleSpeak).Methods("POST")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
	api.HandleFunc("/settings/reset", s.handleResetSettings).Methods("POST")
	api.HandleFunc("/settings/test-voice", s.handleTestVoice).Methods("POST")
	api.HandleFunc("/signs", s.handleSigns).Methods("GET")

	return router
}

// Run serves until ctx is cancelled, with TLS when a certificate is
// configured.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.CertFile != "" {
			slog.Info("Starting HTTPS server", "address", s.cfg.Addr)
			err = s.http.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			slog.Warn("Starting HTTP server without TLS", "address", s.cfg.Addr)
			err = s.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			slog.Error("HTTP server error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Debug("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

type ctxKey struct{}

func identityFrom(r *http.Request) session.Identity {
	id, _ := r.Context().Value(ctxKey{}).(session.Identity)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireSession admits only requests whose bearer token belongs to the
// admitted identity.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.deps.Gate.Verify(bearerToken(r))
		if err != nil {
			slog.Debug("Rejected request", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
