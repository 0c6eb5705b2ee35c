// Package workspace manages the scoped temporary directories the compiler
// driver uses to stage disassembled dependency stubs alongside caller
// supplied source before invoking the bytecode compiler.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

var counter uint64

// Workspace is a per-compile-request directory, owned exclusively by the
// request that created it. It is never shared across requests.
type Workspace struct {
	Root string
}

// New creates a deterministic, collision-free directory under base (or the
// OS temp dir when base is empty) scoped to a single compile request.
func New(base, requestID string) (*Workspace, error) {
	n := atomic.AddUint64(&counter, 1)
	name := fmt.Sprintf("dvm-compile-%s-%d", requestID, n)
	root := filepath.Join(baseDir(base), name)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", root, err)
	}
	return &Workspace{Root: root}, nil
}

func baseDir(base string) string {
	if base != "" {
		return base
	}
	return os.TempDir()
}

// Path returns the absolute path for a file within the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Root, name)
}

// WriteSource writes a disassembled or caller-supplied ".source" file into
// the workspace's dependency stub area.
func (w *Workspace) WriteSource(name string, data []byte) error {
	return os.WriteFile(w.Path(name), data, 0o600)
}

// Close removes the workspace. Callers must invoke Close on every exit path
// — success, compile failure, or a recovered panic — so the directory never
// outlives the request that owns it.
func (w *Workspace) Close() error {
	if w == nil || w.Root == "" {
		return nil
	}
	return os.RemoveAll(w.Root)
}

// Run executes fn with a freshly created Workspace and guarantees its
// removal afterward, even if fn panics.
func Run(base, requestID string, fn func(*Workspace) error) (err error) {
	ws, err := New(base, requestID)
	if err != nil {
		return err
	}
	defer func() {
		cerr := ws.Close()
		if err == nil {
			err = cerr
		}
	}()
	return fn(ws)
}
