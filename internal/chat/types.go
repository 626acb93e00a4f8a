package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewChatPreview is shown for sessions without any user turn.
const NewChatPreview = "New Chat"

const (
	previewMaxRunes = 50
	previewCutRunes = 47
)

// Turn is one message in a conversation, authored by the user or the assistant.
type Turn struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
	ImageData [][]byte  `json:"imageData,omitempty"`
}

// NewTurn creates a turn with a fresh ID.
func NewTurn(content string, isUser bool, ts time.Time, images ...[]byte) Turn {
	t := Turn{
		ID:        uuid.NewString(),
		Content:   content,
		IsUser:    isUser,
		Timestamp: ts,
	}
	if len(images) > 0 {
		t.ImageData = images
	}
	return t
}

// UserTurn creates a user-authored turn.
func UserTurn(content string, ts time.Time, images ...[]byte) Turn {
	return NewTurn(content, true, ts, images...)
}

// AssistantTurn creates an assistant-authored turn.
func AssistantTurn(content string, ts time.Time) Turn {
	return NewTurn(content, false, ts)
}

// HasImages reports whether the turn carries image data.
func (t Turn) HasImages() bool {
	return len(t.ImageData) > 0
}

// Session is a titled, timestamped sequence of turns.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Turns        []Turn    `json:"turns"`
	CreatedDate  time.Time `json:"createdDate"`
	LastModified time.Time `json:"lastModified"`
}

// NewSession creates a session stamped with now for both timestamps.
func NewSession(title string, turns []Turn, now time.Time) Session {
	return Session{
		ID:           uuid.NewString(),
		Title:        title,
		Turns:        turns,
		CreatedDate:  now,
		LastModified: now,
	}
}

// Content renders the session in the legacy flat-text format: user turns are
// wrapped in '*', assistant turns are verbatim, and turns are separated by a
// blank line.
func (s Session) Content() string {
	parts := make([]string, len(s.Turns))
	for i, t := range s.Turns {
		if t.IsUser {
			parts[i] = LegacyMarker + t.Content + LegacyMarker
		} else {
			parts[i] = t.Content
		}
	}
	return strings.Join(parts, "\n\n")
}

// Preview returns the first user turn, truncated for list display.
func (s Session) Preview() string {
	for _, t := range s.Turns {
		if t.IsUser && strings.TrimSpace(t.Content) != "" {
			return truncateRunes(t.Content, previewMaxRunes, previewCutRunes)
		}
	}
	return NewChatPreview
}

// MessageCount returns the number of user turns.
func (s Session) MessageCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.IsUser {
			n++
		}
	}
	return n
}

// HasImages reports whether any turn in the session carries image data.
func (s Session) HasImages() bool {
	for _, t := range s.Turns {
		if t.HasImages() {
			return true
		}
	}
	return false
}

// TitleFrom derives a session title from the first user turn, flattened to a
// single line. Returns NewChatPreview when there is no user turn.
func TitleFrom(turns []Turn) string {
	for _, t := range turns {
		if !t.IsUser || strings.TrimSpace(t.Content) == "" {
			continue
		}
		title := strings.ReplaceAll(strings.TrimSpace(t.Content), "\r", "")
		title = strings.ReplaceAll(title, "\n", " ")
		return truncateRunes(title, previewMaxRunes, previewCutRunes)
	}
	return NewChatPreview
}

func truncateRunes(s string, max, cut int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:cut]) + "..."
	}
	return s
}

// CloneTurns returns a copy of turns. Image byte slices are shared; turns are
// never mutated in place once finalized.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
