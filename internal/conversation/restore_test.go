package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/engine/enginetest"
)

func TestRestore(t *testing.T) {
	now := time.Now()
	photo := []byte("\x89PNG\r\n\x1a\nphoto")
	textOnly := []chat.Turn{
		chat.UserTurn("hello", now),
		chat.AssistantTurn("hi there", now),
	}
	withImage := []chat.Turn{
		chat.UserTurn("what plant is this?", now, photo),
		chat.AssistantTurn("Stinging nettle.", now),
	}

	tests := []struct {
		name       string
		turns      []chat.Turn
		vision     bool
		wantBegin  string
		wantImages int
	}{
		{name: "text only", turns: textOnly, wantBegin: "Begin"},
		{name: "images with vision", turns: withImage, vision: true, wantBegin: "BeginWithImages", wantImages: 1},
		{name: "images without vision", turns: withImage, wantBegin: "Begin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := enginetest.New([]string{"discarded output"})
			eng.Vision = tt.vision
			ctx := context.Background()
			if err := eng.Load(ctx, "gemma3"); err != nil {
				t.Fatal(err)
			}

			if err := Restore(ctx, eng, tt.turns, "", t.TempDir()); err != nil {
				t.Fatalf("Restore: %v", err)
			}

			calls := eng.Calls()
			if calls[1].Method != "Reset" {
				t.Errorf("first call after Load = %s, want Reset", calls[1].Method)
			}
			if eng.Count(tt.wantBegin) != 1 {
				t.Errorf("%s called %d times, want 1 (calls: %+v)", tt.wantBegin, eng.Count(tt.wantBegin), calls)
			}
			if got := len(eng.Images()); got != tt.wantImages {
				t.Errorf("attached %d images, want %d", got, tt.wantImages)
			}
			if !eng.Finished() {
				t.Error("replay left the engine mid-completion")
			}
			if got := eng.Prompts()[0]; got != chat.RenderPrompt(tt.turns) {
				t.Errorf("prompt = %q", got)
			}
		})
	}
}

func TestRestore_EmptyOnlyResets(t *testing.T) {
	eng := enginetest.New()
	if err := Restore(context.Background(), eng, nil, "", t.TempDir()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	calls := eng.Calls()
	if len(calls) != 1 || calls[0].Method != "Reset" {
		t.Errorf("calls = %+v, want a single Reset", calls)
	}
}

func TestRestore_StepError(t *testing.T) {
	eng := enginetest.New([]string{"x"})
	eng.StepErr = errors.New("broken pipe")
	ctx := context.Background()
	eng.Load(ctx, "gemma3")

	err := Restore(ctx, eng, []chat.Turn{chat.UserTurn("hi", time.Now())}, "", t.TempDir())
	if err == nil {
		t.Fatal("Restore succeeded despite step error")
	}
}
