package audioserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/convert"
	"tempo/internal/library"
	"tempo/internal/services"
)

type folderOnly struct{ dir string }

func (folderOnly) Convert(context.Context, *library.Track) (string, error) { return "", nil }

func (folderOnly) All() map[string]string { return map[string]string{} }

func (f folderOnly) Folder(context.Context) (convert.Folder, error) {
	return convert.Folder{Path: f.dir, ID: "conv"}, nil
}

func startedServer(t *testing.T, onFailure func(error)) *Server {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.mp3"), []byte("x"), 0o644))
	srv := New(folderOnly{dir: t.TempDir()}, Options{Bind: "127.0.0.1:0", OnFailure: onFailure})
	_, err := srv.Start(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func TestListenerLossReportsFailure(t *testing.T) {
	failures := make(chan error, 1)
	srv := startedServer(t, func(err error) { failures <- err })

	srv.mu.Lock()
	listener := srv.listener
	srv.mu.Unlock()
	require.NoError(t, listener.Close())

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, services.ErrIO)
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback not called")
	}
	assert.Equal(t, StatusFailed, srv.Status())

	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, StatusStopped, srv.Status())
}

func TestGracefulStopDoesNotReportFailure(t *testing.T) {
	failures := make(chan error, 1)
	srv := startedServer(t, func(err error) { failures <- err })

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case err := <-failures:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
