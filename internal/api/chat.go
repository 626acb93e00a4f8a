package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/conversation"
)

// ChatState is the active conversation as served by GET /chat.
type ChatState struct {
	SessionID    string      `json:"sessionId,omitempty"`
	Busy         bool        `json:"busy"`
	Turns        []chat.Turn `json:"turns"`
	QuickPrompts []string    `json:"quickPrompts,omitempty"`
}

// MessageRequest is the body of POST /chat/messages. Images are base64 in JSON.
type MessageRequest struct {
	Text   string   `json:"text"`
	Images [][]byte `json:"images,omitempty"`
	Stream *bool    `json:"stream,omitempty"` // default true
}

// MessageEvent is one server-sent event of a streamed reply.
type MessageEvent struct {
	Turn  chat.Turn `json:"turn"`
	Done  bool      `json:"done"`
	Error string    `json:"error,omitempty"`
}

func chatState(deps AppDeps) ChatState {
	return ChatState{
		SessionID:    deps.History.CurrentID(),
		Busy:         deps.Conversation.Busy(),
		Turns:        deps.Conversation.Turns(),
		QuickPrompts: deps.Conversation.QuickPrompts(),
	}
}

func handleGetChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chatState(deps))
	}
}

func handleQuickPrompts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompts := deps.Conversation.QuickPrompts()
		if prompts == nil {
			prompts = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
	}
}

func handleClearChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Conversation.Clear()
		writeJSON(w, http.StatusOK, chatState(deps))
	}
}

func handleSendMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodySize)
		defer r.Body.Close()

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		updates, err := deps.Conversation.Send(r.Context(), req.Text, req.Images)
		switch {
		case errors.Is(err, conversation.ErrEmptyMessage):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text or images required")
			return
		case errors.Is(err, conversation.ErrBusy):
			httpError(w, http.StatusConflict, "conflict", "a response is still streaming")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to send message: %v", err)
			return
		}

		if req.Stream != nil && !*req.Stream {
			var last MessageEvent
			for u := range updates {
				last = toEvent(u)
			}
			writeJSON(w, http.StatusOK, last)
			return
		}
		streamUpdates(w, updates)
	}
}

func toEvent(u conversation.Update) MessageEvent {
	ev := MessageEvent{Turn: u.Turn, Done: u.Done}
	if u.Err != nil {
		ev.Error = u.Err.Error()
	}
	return ev
}

// streamUpdates writes each update as an SSE data line. The final event has
// done set; a stream that ends without one was cleared mid-reply.
func streamUpdates(w http.ResponseWriter, updates <-chan conversation.Update) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		for range updates {
		}
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for u := range updates {
		payload, err := json.Marshal(toEvent(u))
		if err != nil {
			slog.Error("failed to marshal stream event", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
