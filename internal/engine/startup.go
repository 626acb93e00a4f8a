package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the Backend is reachable and that model (and
// projector, when it names a separate model) is available. Missing models are
// pulled automatically with progress output written to w.
func EnsureReady(ctx context.Context, b Backend, model, projector string, w io.Writer) error {
	if !b.IsRunning(ctx) {
		return fmt.Errorf("local inference engine is not running; please ensure ollama is started")
	}

	models := make([]string, 0, 2)
	if model != "" {
		models = append(models, model)
	}
	if projector != "" && projector != model {
		models = append(models, projector)
	}

	for _, name := range models {
		if b.HasModel(ctx, name) {
			fmt.Fprintf(w, "model %s: ready\n", name)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", name)
		err := b.PullModel(ctx, name, func(p PullProgress) {
			if pct := p.Percent(); pct >= 0 {
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", name, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", name)
	}

	return nil
}
