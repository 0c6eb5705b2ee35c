package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkspaceWriteSource(t *testing.T) {
	ws, err := New(t.TempDir(), "req-1")
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteSource("0xA::M.source", []byte("module 0xA::M {}")))
	data, err := os.ReadFile(ws.Path("0xA::M.source"))
	require.NoError(t, err)
	require.Equal(t, "module 0xA::M {}", string(data))
}

func TestWorkspaceCloseRemovesDir(t *testing.T) {
	ws, err := New(t.TempDir(), "req-2")
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Root)
	require.True(t, os.IsNotExist(err))
}

func TestRunClosesOnPanic(t *testing.T) {
	base := t.TempDir()
	var root string
	func() {
		defer func() { recover() }()
		_ = Run(base, "req-3", func(ws *Workspace) error {
			root = ws.Root
			panic("boom")
		})
	}()
	require.NotEmpty(t, root)
	_, err := os.Stat(root)
	require.True(t, os.IsNotExist(err))
}

func TestRunClosesOnSuccess(t *testing.T) {
	base := t.TempDir()
	var root string
	err := Run(base, "req-4", func(ws *Workspace) error {
		root = ws.Root
		return ws.WriteSource("a.source", []byte("x"))
	})
	require.NoError(t, err)
	_, statErr := os.Stat(root)
	require.True(t, os.IsNotExist(statErr))
}
