// Package attach materializes attached image blobs as files the inference
// engine can read.
package attach

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Files is a set of image files written for one completion.
type Files struct {
	dir   string
	Paths []string
}

// Write stores each image in its own file under a fresh directory inside
// parent (os.TempDir when parent is empty). Paths keep the order of images.
// Returns nil (not error) for empty input. On failure nothing is left behind.
func Write(ctx context.Context, parent string, images [][]byte) (*Files, error) {
	if len(images) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp(parent, "wildguide-images-")
	if err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	f := &Files{dir: dir, Paths: make([]string, len(images))}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, data := range images {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("image %d is empty", i)
			}
			path := filepath.Join(dir, fmt.Sprintf("image-%02d%s", i, extension(data)))
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("writing image %d: %w", i, err)
			}
			f.Paths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return f, nil
}

// Cleanup removes the files and their directory. Safe on a nil *Files.
func (f *Files) Cleanup() error {
	if f == nil || f.dir == "" {
		return nil
	}
	return os.RemoveAll(f.dir)
}

func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}
