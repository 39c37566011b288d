package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestShaderWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triangle.spv")
	if err := os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan []byte, 1)
	sw, err := NewShaderWatcher(dir, func(_ string, spirv []byte) {
		changed <- spirv
	})
	if err != nil {
		t.Fatalf("NewShaderWatcher: %s", err)
	}
	defer sw.Close()

	updated := []byte{0x03, 0x02, 0x23, 0x07, 0xAA}
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if len(got) != len(updated) {
			t.Errorf("onChange payload len = %d, want %d", len(got), len(updated))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shader watcher to observe the write")
	}
}

func TestShaderWatcherIgnoresNonSpirvFiles(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan struct{}, 1)
	sw, err := NewShaderWatcher(dir, func(string, []byte) {
		changed <- struct{}{}
	})
	if err != nil {
		t.Fatalf("NewShaderWatcher: %s", err)
	}
	defer sw.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("onChange fired for a non-.spv write")
	case <-time.After(300 * time.Millisecond):
	}
}
