package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wildguide/internal/conversation"
	"github.com/kalambet/wildguide/internal/history"
	"github.com/kalambet/wildguide/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxMessageBodySize = 32 << 20 // 32MB, room for base64 photos

// AppDeps holds the components served by the local API.
type AppDeps struct {
	Store        *storage.Store
	History      *history.Manager
	Conversation *conversation.Conversation
	Token        string
}

// NewAppHandler returns the local REST API. Everything except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/sessions", handleListSessions(deps))
		r.Post("/sessions/import", handleImportSession(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Delete("/sessions/{id}", handleDeleteSession(deps))
		r.Post("/sessions/{id}/open", handleOpenSession(deps))

		r.Get("/chat", handleGetChat(deps))
		r.Post("/chat/messages", handleSendMessage(deps))
		r.Post("/chat/clear", handleClearChat(deps))
		r.Get("/chat/prompts", handleQuickPrompts(deps))

		r.Get("/bookmarks", handleListBookmarks(deps))
		r.Post("/bookmarks", handleCreateBookmark(deps))
		r.Delete("/bookmarks/{id}", handleDeleteBookmark(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
