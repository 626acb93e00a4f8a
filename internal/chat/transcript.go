package chat

import (
	"errors"
	"strings"
	"time"
)

// ErrTurnInProgress is returned when a finalized turn is appended while an
// assistant turn is still streaming.
var ErrTurnInProgress = errors.New("assistant turn in progress")

// ErrNoTurnInProgress is returned by Replace and Finalize when no assistant
// turn is streaming.
var ErrNoTurnInProgress = errors.New("no assistant turn in progress")

// Transcript accumulates the turns of the active conversation. Finalized
// turns are append-only; the single in-progress assistant turn may be
// replaced at its index until it is finalized. Transcript is not safe for
// concurrent use; the owner serializes access.
type Transcript struct {
	turns      []Turn
	inProgress bool
}

// NewTranscript creates a transcript seeded with turns.
func NewTranscript(turns []Turn) *Transcript {
	return &Transcript{turns: CloneTurns(turns)}
}

// Append adds a finalized turn.
func (t *Transcript) Append(turn Turn) error {
	if t.inProgress {
		return ErrTurnInProgress
	}
	t.turns = append(t.turns, turn)
	return nil
}

// Begin appends an empty in-progress assistant turn and returns its index.
func (t *Transcript) Begin(ts time.Time) (int, error) {
	if t.inProgress {
		return 0, ErrTurnInProgress
	}
	t.turns = append(t.turns, AssistantTurn("", ts))
	t.inProgress = true
	return len(t.turns) - 1, nil
}

// Replace swaps the content of the in-progress turn wholesale.
func (t *Transcript) Replace(content string) (Turn, error) {
	if !t.inProgress {
		return Turn{}, ErrNoTurnInProgress
	}
	i := len(t.turns) - 1
	t.turns[i].Content = content
	return t.turns[i], nil
}

// Finalize freezes the in-progress turn. The turn content is trimmed of
// surrounding whitespace.
func (t *Transcript) Finalize() (Turn, error) {
	if !t.inProgress {
		return Turn{}, ErrNoTurnInProgress
	}
	i := len(t.turns) - 1
	t.turns[i].Content = strings.TrimSpace(t.turns[i].Content)
	t.inProgress = false
	return t.turns[i], nil
}

// InProgress reports whether an assistant turn is streaming.
func (t *Transcript) InProgress() bool {
	return t.inProgress
}

// Len returns the number of turns, including an in-progress one.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Turns returns a copy of all turns.
func (t *Transcript) Turns() []Turn {
	return CloneTurns(t.turns)
}

// Finalized returns a copy of the turns excluding an in-progress one.
func (t *Transcript) Finalized() []Turn {
	if t.inProgress {
		return CloneTurns(t.turns[:len(t.turns)-1])
	}
	return CloneTurns(t.turns)
}

// Reset drops every turn, including an in-progress one.
func (t *Transcript) Reset(turns []Turn) {
	t.turns = CloneTurns(turns)
	t.inProgress = false
}
