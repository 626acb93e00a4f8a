package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/wildguide/internal/attach"
	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/engine"
)

// Restore rebuilds the engine's conversation state from turns. The engine is
// reset, then fed the rendered transcript; the generated reply is discarded.
//
// When any turn carries images the engine is switched to multimodal input
// through projector and every image is attached before the replay. If that
// is not possible the replay silently falls back to text only.
func Restore(ctx context.Context, e engine.Engine, turns []chat.Turn, projector, imageDir string) error {
	e.Reset()
	if len(turns) == 0 {
		return nil
	}

	var images [][]byte
	for _, t := range turns {
		images = append(images, t.ImageData...)
	}

	multimodal := false
	if len(images) > 0 {
		multimodal = e.HasMultimodal() || e.EnableMultimodal(ctx, projector)
		if !multimodal {
			slog.Debug("multimodal unavailable, restoring text only", "images", len(images))
		}
	}

	if multimodal {
		files, err := attach.Write(ctx, imageDir, images)
		if err != nil {
			slog.Debug("failed to write images for restore, restoring text only", "error", err)
			multimodal = false
		} else {
			defer files.Cleanup()
			added := 0
			for _, p := range files.Paths {
				if e.AddImage(p) {
					added++
				}
			}
			multimodal = added > 0
		}
	}

	prompt := chat.RenderPrompt(turns)
	var err error
	if multimodal {
		err = e.BeginWithImages(ctx, prompt)
	} else {
		err = e.Begin(ctx, prompt)
	}
	if err != nil {
		return fmt.Errorf("replaying transcript: %w", err)
	}

	for !e.Finished() {
		if _, err := e.Step(ctx); err != nil {
			return fmt.Errorf("replaying transcript: %w", err)
		}
	}
	return nil
}
