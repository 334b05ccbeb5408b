// Package server exposes the soundboard via websocket and REST API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mgoltzsche/sobub/internal/library"
	"github.com/mgoltzsche/sobub/internal/session"
	"github.com/mgoltzsche/sobub/internal/settings"
	"github.com/mgoltzsche/sobub/internal/store"
	"github.com/mgoltzsche/sobub/internal/trigger"
)

const (
	AppName        = "SOBUB"
	AppDescription = "Silence Occasionally Broken Up By (a soundboard)"
)

// Server serves the websocket and REST endpoints.
type Server struct {
	Store    store.Store
	Library  *library.Library
	Engines  *trigger.Provider
	Sessions *session.Manager
	// WebDir is served as static content when set.
	WebDir string
	// AllowedOrigins lists the host patterns allowed to open a websocket
	// from another origin. An empty list only allows same-origin requests.
	AllowedOrigins []string
}

// AddRoutes registers the endpoints at the given mux.
func (s *Server) AddRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("GET /ws/{clientId}", s.handleWebsocket)

	mux.HandleFunc("GET /api/memes", s.listMemes)
	mux.HandleFunc("POST /api/memes", s.createMeme)
	mux.HandleFunc("GET /api/memes/{id}", s.getMeme)
	mux.HandleFunc("PUT /api/memes/{id}", s.updateMeme)
	mux.HandleFunc("DELETE /api/memes/{id}", s.deleteMeme)
	mux.HandleFunc("GET /api/memes/{id}/audio", s.getMemeAudio)
	mux.HandleFunc("GET /api/tags", s.listTags)

	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.updateSettings)
	mux.HandleFunc("GET /api/status", s.getStatus)
	mux.HandleFunc("POST /api/cooldown/reset", s.resetCooldown)

	if s.WebDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.WebDir)))
	} else {
		mux.HandleFunc("GET /{$}", s.appInfo)
	}
}

func (s *Server) appInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         AppName,
		"description": AppDescription,
		"status":      "running",
	})
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrInvalidTags),
		errors.Is(err, library.ErrInvalidAudio),
		errors.Is(err, library.ErrUnsupportedFormat),
		errors.Is(err, settings.ErrInvalid),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	} else {
		slog.Warn("rejected request", "err", err)
	}

	writeJSON(w, status, errorResponse{Detail: err.Error()})
}
