package attach

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestWrite_PreservesOrder(t *testing.T) {
	images := [][]byte{[]byte("first"), pngHeader, []byte("third")}
	f, err := Write(context.Background(), t.TempDir(), images)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer f.Cleanup()

	if len(f.Paths) != len(images) {
		t.Fatalf("got %d paths, want %d", len(f.Paths), len(images))
	}
	for i, p := range f.Paths {
		got, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("reading %s: %v", p, err)
		}
		if !bytes.Equal(got, images[i]) {
			t.Errorf("file %d = %q, want %q", i, got, images[i])
		}
	}
	if !strings.HasSuffix(f.Paths[1], ".png") {
		t.Errorf("png path = %s, want .png suffix", f.Paths[1])
	}
}

func TestWrite_Empty(t *testing.T) {
	f, err := Write(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if f != nil {
		t.Errorf("Write(nil) = %v, want nil", f)
	}
	if err := f.Cleanup(); err != nil {
		t.Errorf("Cleanup on nil: %v", err)
	}
}

func TestWrite_FailureLeavesNothing(t *testing.T) {
	parent := t.TempDir()
	_, err := Write(context.Background(), parent, [][]byte{[]byte("ok"), nil})
	if err == nil {
		t.Fatal("Write succeeded with an empty image")
	}
	entries, _ := os.ReadDir(parent)
	if len(entries) != 0 {
		t.Errorf("parent has %d entries after failed write, want 0", len(entries))
	}
}

func TestCleanup_RemovesDirectory(t *testing.T) {
	f, err := Write(context.Background(), t.TempDir(), [][]byte{[]byte("x")})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	dir := filepath.Dir(f.Paths[0])
	if err := f.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory still exists after Cleanup: %v", err)
	}
}
