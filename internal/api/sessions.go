package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/conversation"
	"github.com/kalambet/wildguide/internal/history"
	"github.com/kalambet/wildguide/internal/storage"
)

// SessionSummary is the list view of a stored session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"messageCount"`
	HasImages    bool      `json:"hasImages"`
	Active       bool      `json:"active"`
	CreatedDate  time.Time `json:"createdDate"`
	LastModified time.Time `json:"lastModified"`
}

func summarize(s chat.Session, activeID string) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		Preview:      s.Preview(),
		MessageCount: s.MessageCount(),
		HasImages:    s.HasImages(),
		Active:       s.ID != "" && s.ID == activeID,
		CreatedDate:  s.CreatedDate,
		LastModified: s.LastModified,
	}
}

// ImportRequest carries a legacy flat-text transcript.
type ImportRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 0, 0)
		offset := parseIntParam(r, "offset", 0, 0)

		sessions := deps.History.Sessions()
		if offset > len(sessions) {
			offset = len(sessions)
		}
		sessions = sessions[offset:]
		if limit > 0 && limit < len(sessions) {
			sessions = sessions[:limit]
		}

		active := deps.History.CurrentID()
		out := make([]SessionSummary, len(sessions))
		for i, s := range sessions {
			out[i] = summarize(s, active)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.History.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.History.Delete(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}

		n, err := deps.Store.DeleteSessionBookmarks(id)
		if err != nil {
			slog.Warn("failed to delete bookmarks of removed session", "session_id", id, "error", err)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "deleted",
			"bookmarks_removed": n,
		})
	}
}

func handleOpenSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.History.RequestLoad(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to request session: %v", err)
			return
		}

		_, err := deps.Conversation.OpenPending(r.Context())
		switch {
		case errors.Is(err, conversation.ErrBusy):
			httpError(w, http.StatusConflict, "conflict", "a response is still streaming")
			return
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		case err != nil:
			// The transcript is switched even when the engine replay fails.
			slog.Warn("session opened without engine context", "session_id", id, "error", err)
		}

		writeJSON(w, http.StatusOK, chatState(deps))
	}
}

func handleImportSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		title := req.Title
		if title == "" {
			title = chat.TitleFrom(chat.ParseLegacy(req.Content, time.Now()))
		}

		s, err := deps.History.SaveLegacy(title, req.Content)
		if errors.Is(err, history.ErrEmptyTranscript) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import session: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, summarize(s, deps.History.CurrentID()))
	}
}
