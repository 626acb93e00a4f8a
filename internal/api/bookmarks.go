package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/wildguide/internal/storage"
)

const bookmarkPreviewRunes = 120

// BookmarkRequest is the body of POST /bookmarks. Chat bookmarks reference
// an assistant turn; guide bookmarks carry their own title and preview.
type BookmarkRequest struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Preview   string `json:"preview"`
	SessionID string `json:"sessionId"`
	TurnID    string `json:"turnId"`
}

func handleListBookmarks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		bookmarks, err := deps.Store.ListBookmarks(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list bookmarks: %v", err)
			return
		}
		if bookmarks == nil {
			bookmarks = []storage.Bookmark{}
		}
		writeJSON(w, http.StatusOK, bookmarks)
	}
}

func handleCreateBookmark(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req BookmarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		b := storage.Bookmark{
			ID:        uuid.New().String(),
			Kind:      req.Kind,
			Title:     req.Title,
			Category:  req.Category,
			Preview:   req.Preview,
			CreatedAt: time.Now().UTC(),
		}

		switch req.Kind {
		case "", storage.KindChat:
			b.Kind = storage.KindChat
			status, msg := resolveChatBookmark(deps, req, &b)
			if status != 0 {
				httpError(w, status, errorType(status), "%s", msg)
				return
			}
		case storage.KindGuide:
			if strings.TrimSpace(req.Title) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required for guide bookmarks")
				return
			}
			b.Preview = excerpt(req.Preview, bookmarkPreviewRunes)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown bookmark kind %q", req.Kind)
			return
		}

		if err := deps.Store.SaveBookmark(b); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save bookmark: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

// resolveChatBookmark fills b from the referenced assistant turn. A non-zero
// status reports why the reference is invalid.
func resolveChatBookmark(deps AppDeps, req BookmarkRequest, b *storage.Bookmark) (int, string) {
	if req.SessionID == "" || req.TurnID == "" {
		return http.StatusBadRequest, "sessionId and turnId are required for chat bookmarks"
	}
	s, err := deps.History.Get(req.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound, "session not found"
	}
	if err != nil {
		return http.StatusInternalServerError, err.Error()
	}

	for _, t := range s.Turns {
		if t.ID != req.TurnID {
			continue
		}
		if t.IsUser {
			return http.StatusBadRequest, "only assistant responses can be bookmarked"
		}
		b.SessionID = s.ID
		b.TurnID = t.ID
		b.Preview = excerpt(t.Content, bookmarkPreviewRunes)
		if b.Title == "" {
			b.Title = s.Title
		}
		return 0, ""
	}
	return http.StatusNotFound, "turn not found"
}

func handleDeleteBookmark(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteBookmark(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "bookmark not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete bookmark: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}
