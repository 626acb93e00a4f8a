package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/wildguide/internal/attach"
	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/engine"
	"github.com/kalambet/wildguide/internal/history"
)

var (
	// ErrBusy is returned when a completion or restoration is already running.
	ErrBusy = errors.New("conversation is busy")

	// ErrEmptyMessage is returned by Send when there is neither text nor an image.
	ErrEmptyMessage = errors.New("empty message")
)

// History is the subset of history.Manager the conversation drives.
type History interface {
	Get(id string) (chat.Session, error)
	Select(id string) error
	StartNew()
	CurrentID() string
	SaveTurns(title string, turns []chat.Turn) (chat.Session, error)
	UpdateCurrentTurns(turns []chat.Turn) error
	TakeLoadRequest() (string, bool)
}

// Options configures a Conversation.
type Options struct {
	Model     string
	Projector string
	ImageDir  string // parent directory for attached image files; "" uses os.TempDir
	Autosave  bool
}

// Update is one step of a streamed response. The final update has Done set;
// Err is non-nil when the completion failed.
type Update struct {
	Turn chat.Turn
	Done bool
	Err  error
}

// Conversation is the active chat: a transcript, the engine that extends it
// and the history it is saved into. All transcript mutations happen under mu;
// at most one completion or restoration uses the engine at a time.
type Conversation struct {
	engine  engine.Engine
	history History
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu           sync.Mutex
	transcript   *chat.Transcript
	epoch        uint64 // bumped by Clear and Open; stale completions drop their writes
	busy         bool
	loaded       bool
	resetPending bool
}

// New creates a Conversation showing the greeting.
func New(e engine.Engine, h History, opts Options) *Conversation {
	c := &Conversation{
		engine:  e,
		history: h,
		opts:    opts,
		logger:  slog.Default(),
		now:     time.Now,
	}
	c.transcript = chat.NewTranscript(c.greeting())
	return c
}

func (c *Conversation) greeting() []chat.Turn {
	return []chat.Turn{chat.AssistantTurn(chat.Greeting, c.now())}
}

// Turns returns the current transcript, including a streaming turn.
func (c *Conversation) Turns() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Turns()
}

// Busy reports whether a completion or restoration is running.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// QuickPrompts returns suggested questions while the user has not asked anything yet.
func (c *Conversation) QuickPrompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.transcript.Turns() {
		if t.IsUser {
			return nil
		}
	}
	return append([]string(nil), chat.QuickPrompts...)
}

// Send appends a user turn and streams the assistant's reply. The returned
// channel yields an Update per chunk and is closed after the final one.
//
// ctx only bounds delivery: if it is cancelled the completion still runs to
// the end and is saved, but no further updates are sent. A model that fails
// to load produces a single final update carrying an inline error turn.
func (c *Conversation) Send(ctx context.Context, text string, images [][]byte) (<-chan Update, error) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if err := c.transcript.Append(chat.UserTurn(text, c.now(), images...)); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("appending user turn: %w", err)
	}
	c.busy = true
	epoch := c.epoch
	c.mu.Unlock()

	// The completion outlives the caller's request.
	bctx := context.WithoutCancel(ctx)
	updates := make(chan Update, 16)

	if err := c.ensureLoaded(bctx); err != nil {
		c.logger.Error("failed to load model", "model", c.opts.Model, "error", err)
		c.failInline(epoch, "Error loading model: "+err.Error(), err, updates)
		return updates, nil
	}

	if err := c.begin(bctx, text, images); err != nil {
		c.logger.Error("failed to start completion", "error", err)
		c.failInline(epoch, "Error: "+err.Error(), err, updates)
		return updates, nil
	}

	c.mu.Lock()
	if c.epoch == epoch {
		if _, err := c.transcript.Begin(c.now()); err != nil {
			c.logger.Error("failed to open assistant turn", "error", err)
		}
	}
	c.mu.Unlock()

	go c.stream(ctx, bctx, epoch, updates)
	return updates, nil
}

func (c *Conversation) ensureLoaded(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return nil
	}

	if c.opts.Projector != "" {
		err := c.engine.LoadWithProjector(ctx, c.opts.Model, c.opts.Projector)
		if err == nil {
			c.mu.Lock()
			c.loaded = true
			c.mu.Unlock()
			return nil
		}
		c.logger.Warn("failed to load model with projector, loading text only",
			"model", c.opts.Model, "projector", c.opts.Projector, "error", err)
	}
	if err := c.engine.Load(ctx, c.opts.Model); err != nil {
		return err
	}
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// begin starts the engine on text. Images go through temp files; if that
// fails the message is sent as text only.
func (c *Conversation) begin(ctx context.Context, text string, images [][]byte) error {
	if len(images) == 0 {
		return c.engine.Begin(ctx, text)
	}

	if !c.engine.HasMultimodal() && !c.engine.EnableMultimodal(ctx, c.opts.Projector) {
		c.logger.Warn("model has no image support, sending text only", "model", c.opts.Model)
		return c.engine.Begin(ctx, text)
	}

	files, err := attach.Write(ctx, c.opts.ImageDir, images)
	if err != nil {
		c.logger.Warn("failed to write attached images, sending text only", "error", err)
		return c.engine.Begin(ctx, text)
	}
	defer files.Cleanup()

	added := 0
	for _, p := range files.Paths {
		if c.engine.AddImage(p) {
			added++
		}
	}
	if added == 0 {
		return c.engine.Begin(ctx, text)
	}
	return c.engine.BeginWithImages(ctx, text)
}

func (c *Conversation) stream(ctx, bctx context.Context, epoch uint64, updates chan<- Update) {
	defer close(updates)

	var text strings.Builder
	var streamErr error
	for !c.engine.Finished() {
		piece, err := c.engine.Step(bctx)
		if err != nil {
			streamErr = err
			break
		}
		if piece == "" {
			continue
		}
		text.WriteString(piece)

		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			continue
		}
		turn, err := c.transcript.Replace(text.String())
		c.mu.Unlock()
		if err == nil {
			deliver(ctx, updates, Update{Turn: turn})
		}
	}

	if streamErr != nil {
		c.logger.Warn("completion failed", "error", streamErr)
	}
	final, ok := c.finish(epoch, streamErr)
	if ok {
		deliver(ctx, updates, Update{Turn: final, Done: true, Err: streamErr})
	}
}

// finish finalizes the streaming turn and autosaves. It reports false when
// the conversation was cleared or switched while the completion ran.
func (c *Conversation) finish(epoch uint64, streamErr error) (chat.Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unbusyLocked()
	if c.epoch != epoch {
		return chat.Turn{}, false
	}

	if streamErr != nil && strings.TrimSpace(c.lastContentLocked()) == "" {
		c.transcript.Replace("Error: " + streamErr.Error())
	}
	final, err := c.transcript.Finalize()
	if err != nil {
		return chat.Turn{}, false
	}
	c.autosaveLocked()
	return final, true
}

// unbusyLocked releases the engine and applies a reset deferred by Clear.
func (c *Conversation) unbusyLocked() {
	c.busy = false
	if c.resetPending {
		c.engine.Reset()
		c.resetPending = false
	}
}

func (c *Conversation) lastContentLocked() string {
	turns := c.transcript.Turns()
	if len(turns) == 0 {
		return ""
	}
	return turns[len(turns)-1].Content
}

func (c *Conversation) failInline(epoch uint64, msg string, err error, updates chan Update) {
	defer close(updates)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbusyLocked()
	if c.epoch != epoch {
		return
	}
	turn := chat.AssistantTurn(msg, c.now())
	if appendErr := c.transcript.Append(turn); appendErr != nil {
		c.logger.Error("failed to append error turn", "error", appendErr)
		return
	}
	updates <- Update{Turn: turn, Done: true, Err: err}
}

// autosaveLocked writes the finalized transcript into history: the active
// session is updated in place, otherwise a new session is created and made
// active.
func (c *Conversation) autosaveLocked() {
	if !c.opts.Autosave {
		return
	}
	turns := c.transcript.Finalized()

	if c.history.CurrentID() != "" {
		err := c.history.UpdateCurrentTurns(turns)
		if err == nil {
			return
		}
		if !errors.Is(err, history.ErrNoActiveSession) {
			c.logger.Error("failed to autosave session", "error", err)
			return
		}
	}

	s, err := c.history.SaveTurns(chat.TitleFrom(turns), turns)
	if err != nil {
		c.logger.Error("failed to autosave new session", "error", err)
		return
	}
	if err := c.history.Select(s.ID); err != nil {
		c.logger.Warn("failed to select saved session", "id", s.ID, "error", err)
	}
}

func deliver(ctx context.Context, updates chan<- Update, u Update) {
	select {
	case updates <- u:
	case <-ctx.Done():
	}
}

// Clear empties the transcript and starts a new chat. Chunks of a completion
// still streaming are dropped and the engine state is reset once it ends.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.transcript.Reset(c.greeting())
	c.history.StartNew()
	if c.busy {
		c.resetPending = true
		return
	}
	if c.loaded {
		c.engine.Reset()
	}
}

// Open makes the session with the given id the active conversation and
// rebuilds the engine context from its turns.
func (c *Conversation) Open(ctx context.Context, id string) error {
	s, err := c.history.Get(id)
	if err != nil {
		return fmt.Errorf("opening session %s: %w", id, err)
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.history.Select(id); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("selecting session %s: %w", id, err)
	}
	c.epoch++
	c.transcript.Reset(s.Turns)
	c.busy = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.unbusyLocked()
		c.mu.Unlock()
	}()

	if err := c.ensureLoaded(ctx); err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	return c.restore(ctx, s.Turns)
}

// OpenPending opens the session requested through the history load
// hand-off, if any. It reports whether a session was opened.
func (c *Conversation) OpenPending(ctx context.Context) (bool, error) {
	id, ok := c.history.TakeLoadRequest()
	if !ok {
		return false, nil
	}
	if err := c.Open(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Conversation) restore(ctx context.Context, turns []chat.Turn) error {
	return Restore(ctx, c.engine, turns, c.opts.Projector, c.opts.ImageDir)
}
