package core

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ShaderWatcher watches a directory of compiled SPIR-V binaries and fires a
// callback with the changed file's bytes whenever one is rewritten,
// supporting runtime shader hot-reload instead of a fixed, build-time
// shader set.
type ShaderWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(path string, spirv []byte)
	done     chan struct{}
}

// NewShaderWatcher starts watching dir for writes to *.spv files.
func NewShaderWatcher(dir string, onChange func(path string, spirv []byte)) (*ShaderWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	sw := &ShaderWatcher{watcher: w, onChange: onChange, done: make(chan struct{})}
	go sw.run()
	return sw, nil
}

func (sw *ShaderWatcher) run() {
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".spv" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(event.Name)
			if err != nil {
				LogWarn("shader watcher: failed to read %s: %s", event.Name, err)
				continue
			}
			LogDebug("shader watcher: reloading %s", event.Name)
			sw.onChange(event.Name, data)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			LogWarn("shader watcher error: %s", err)
		case <-sw.done:
			return
		}
	}
}

func (sw *ShaderWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
