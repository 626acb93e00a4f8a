package history

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/storage"
)

// Key is the storage key holding the serialized session collection.
const Key = "chat_history"

var (
	// ErrEmptyTranscript is returned when saving a transcript with nothing in it.
	// No session is created.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrNoActiveSession is returned when updating the active session while none is selected.
	ErrNoActiveSession = errors.New("no active session")
)

// BlobStore is the key-value storage the Manager persists into.
// Implemented by storage.Store.
type BlobStore interface {
	GetBlob(key string) ([]byte, error)
	PutBlob(key string, value []byte) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager owns the newest-first session collection and the active-session
// pointer. Every mutating operation re-encodes the whole collection and
// writes it under Key, so the stored blob always mirrors memory.
type Manager struct {
	store  BlobStore
	clock  Clock
	logger *slog.Logger

	mu          sync.RWMutex
	sessions    []chat.Session
	currentID   string
	loadRequest string
}

// NewManager creates a Manager and loads the stored collection. A missing or
// unreadable blob yields an empty history; the failure is logged.
func NewManager(store BlobStore) *Manager {
	return NewManagerWithClock(store, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store BlobStore, clock Clock) *Manager {
	m := &Manager{
		store:  store,
		clock:  clock,
		logger: slog.Default(),
	}
	if err := m.Load(); err != nil {
		m.logger.Warn("failed to load chat history", "error", err)
	}
	return m
}

// Load replaces the in-memory collection with the stored one.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.store.GetBlob(Key)
	if errors.Is(err, storage.ErrNotFound) {
		m.sessions = nil
		return nil
	}
	if err != nil {
		m.sessions = nil
		return fmt.Errorf("reading chat history: %w", err)
	}

	sessions, err := chat.DecodeSessions(data)
	if err != nil {
		m.sessions = nil
		return fmt.Errorf("decoding chat history: %w", err)
	}
	m.sessions = sessions
	return nil
}

// Sessions returns all sessions, newest first.
func (m *Manager) Sessions() []chat.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]chat.Session, len(m.sessions))
	for i, s := range m.sessions {
		s.Turns = chat.CloneTurns(s.Turns)
		out[i] = s
	}
	return out
}

// Get returns the session with the given id, or storage.ErrNotFound.
func (m *Manager) Get(id string) (chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexOf(id)
	if i < 0 {
		return chat.Session{}, storage.ErrNotFound
	}
	s := m.sessions[i]
	s.Turns = chat.CloneTurns(s.Turns)
	return s, nil
}

// SaveLegacy parses a legacy flat-text transcript and stores it as a new
// session at the front of the collection. Blank content is a no-op.
func (m *Manager) SaveLegacy(title, content string) (chat.Session, error) {
	if strings.TrimSpace(content) == "" {
		return chat.Session{}, ErrEmptyTranscript
	}
	now := m.clock.Now()
	return m.insert(chat.NewSession(title, chat.ParseLegacy(content, now), now))
}

// SaveTurns stores turns as a new session at the front of the collection.
// An empty turn list is a no-op.
func (m *Manager) SaveTurns(title string, turns []chat.Turn) (chat.Session, error) {
	if len(turns) == 0 {
		return chat.Session{}, ErrEmptyTranscript
	}
	now := m.clock.Now()
	return m.insert(chat.NewSession(title, chat.CloneTurns(turns), now))
}

func (m *Manager) insert(s chat.Session) (chat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = append([]chat.Session{s}, m.sessions...)
	return s, m.persistLocked()
}

// UpdateCurrent replaces the active session's turns with those parsed from
// legacy content, keeping its id, title and creation time. Parsed turns carry
// the session's creation time, as legacy text has no per-turn timestamps.
func (m *Manager) UpdateCurrent(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(m.currentID)
	if i < 0 {
		return ErrNoActiveSession
	}
	m.sessions[i].Turns = chat.ParseLegacy(content, m.sessions[i].CreatedDate)
	m.sessions[i].LastModified = m.clock.Now()
	return m.persistLocked()
}

// UpdateCurrentTurns replaces the active session's turns, keeping its id,
// title and creation time.
func (m *Manager) UpdateCurrentTurns(turns []chat.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(m.currentID)
	if i < 0 {
		return ErrNoActiveSession
	}
	m.sessions[i].Turns = chat.CloneTurns(turns)
	m.sessions[i].LastModified = m.clock.Now()
	return m.persistLocked()
}

// Delete removes the session with the given id. If it was the active session
// the active pointer is cleared.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return storage.ErrNotFound
	}
	m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
	if m.currentID == id {
		m.currentID = ""
	}
	if m.loadRequest == id {
		m.loadRequest = ""
	}
	return m.persistLocked()
}

// StartNew clears the active-session pointer.
func (m *Manager) StartNew() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentID = ""
}

// Select makes the session with the given id active.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(id) < 0 {
		return storage.ErrNotFound
	}
	m.currentID = id
	return nil
}

// CurrentID returns the active session id, or "" when none is active.
func (m *Manager) CurrentID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentID
}

// RequestLoad records that the session with the given id should be opened by
// the chat surface.
func (m *Manager) RequestLoad(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(id) < 0 {
		return storage.ErrNotFound
	}
	m.loadRequest = id
	return nil
}

// TakeLoadRequest returns and clears the pending load request.
func (m *Manager) TakeLoadRequest() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.loadRequest
	m.loadRequest = ""
	return id, id != ""
}

func (m *Manager) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, s := range m.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) persistLocked() error {
	data, err := chat.EncodeSessions(m.sessions)
	if err != nil {
		m.logger.Error("failed to encode chat history", "error", err)
		return fmt.Errorf("encoding chat history: %w", err)
	}
	if err := m.store.PutBlob(Key, data); err != nil {
		m.logger.Error("failed to save chat history", "error", err)
		return fmt.Errorf("saving chat history: %w", err)
	}
	return nil
}
