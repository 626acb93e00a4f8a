package chat

import (
	"encoding/json"
	"strings"
)

// UnmarshalJSON decodes a session record. Records written before turns were
// stored carry a flat "content" string instead; those are migrated with
// ParseLegacy using the session's creation time.
func (s *Session) UnmarshalJSON(data []byte) error {
	type sessionAlias Session
	var rec struct {
		sessionAlias
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*s = Session(rec.sessionAlias)
	if s.Turns == nil && rec.Content != nil && strings.TrimSpace(*rec.Content) != "" {
		s.Turns = ParseLegacy(*rec.Content, s.CreatedDate)
	}
	return nil
}

// EncodeSessions serializes the session collection for storage.
func EncodeSessions(sessions []Session) ([]byte, error) {
	if sessions == nil {
		sessions = []Session{}
	}
	return json.Marshal(sessions)
}

// DecodeSessions parses a stored session collection.
func DecodeSessions(data []byte) ([]Session, error) {
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
