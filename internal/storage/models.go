package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Bookmark kinds.
const (
	KindChat  = "chat"
	KindGuide = "guide"
)

// Bookmark is a saved chat response or guide reference.
type Bookmark struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "chat" or "guide"
	Title     string    `json:"title"`
	Category  string    `json:"category,omitempty"`
	Preview   string    `json:"preview"`
	SessionID string    `json:"sessionId,omitempty"` // set for chat bookmarks
	TurnID    string    `json:"turnId,omitempty"`    // set for chat bookmarks
	CreatedAt time.Time `json:"createdAt"`
}
