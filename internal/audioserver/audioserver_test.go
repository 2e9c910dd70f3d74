package audioserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/audioserver"
	"tempo/internal/convert"
	"tempo/internal/library"
	"tempo/internal/services"
	"tempo/internal/testsupport"
)

type fakeConverter struct {
	folder  convert.Folder
	outputs map[string]string
	err     error
	calls   atomic.Int32
}

func (f *fakeConverter) Convert(_ context.Context, track *library.Track) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(f.folder.Path, track.StableID(), "out.mp3")
	f.outputs[track.StableID()] = out
	return out, nil
}

func (f *fakeConverter) All() map[string]string { return f.outputs }

func (f *fakeConverter) Folder(context.Context) (convert.Folder, error) { return f.folder, nil }

func newFixture(t *testing.T) (*audioserver.Server, *fakeConverter, string) {
	t.Helper()
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "Artist", "one.mp3"), 64)
	conv := &fakeConverter{
		folder:  convert.Folder{Path: t.TempDir(), ID: "folder-1"},
		outputs: map[string]string{},
	}
	srv := audioserver.New(conv, audioserver.Options{Bind: "127.0.0.1:0"})
	return srv, conv, root
}

func TestStartIsIdempotent(t *testing.T) {
	srv, _, root := newFixture(t)
	ctx := context.Background()

	first, err := srv.Start(ctx, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	second, err := srv.Start(ctx, root)
	require.NoError(t, err)

	assert.False(t, first.AlreadyRunning)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, first.Folder, second.Folder)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, audioserver.StatusStarted, srv.Status())
}

func TestStartRetargetsRootWithoutRebinding(t *testing.T) {
	srv, _, root := newFixture(t)
	other := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(other, "two.mp3"), 32)

	first, err := srv.Start(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	second, err := srv.Start(context.Background(), other)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, library.NormalizePath(other), srv.Root())
}

func TestStartValidatesRoot(t *testing.T) {
	srv, _, root := newFixture(t)
	file := filepath.Join(root, "Artist", "one.mp3")

	cases := map[string]string{
		"missing":   filepath.Join(root, "nope"),
		"not a dir": file,
		"empty":     t.TempDir(),
		"blank":     "  ",
	}
	for name, candidate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := srv.Start(context.Background(), candidate)
			require.ErrorIs(t, err, services.ErrValidation)
			assert.Equal(t, audioserver.StatusStopped, srv.Status())
		})
	}
}

func TestStopThenStartAgain(t *testing.T) {
	srv, _, root := newFixture(t)
	ctx := context.Background()

	_, err := srv.Start(ctx, root)
	require.NoError(t, err)
	require.NoError(t, srv.Stop(ctx))
	assert.Equal(t, audioserver.StatusStopped, srv.Status())
	assert.Empty(t, srv.Address())

	require.NoError(t, srv.Stop(ctx), "second stop is a no-op")

	_, err = srv.Start(ctx, root)
	require.NoError(t, err)
	require.NoError(t, srv.Stop(ctx))
}

func TestStartFailsWhenPortBusy(t *testing.T) {
	srv, conv, root := newFixture(t)
	_, err := srv.Start(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	clash := audioserver.New(conv, audioserver.Options{Bind: srv.Address()})
	_, err = clash.Start(context.Background(), root)
	require.ErrorIs(t, err, services.ErrIO)
	assert.Equal(t, audioserver.StatusFailed, clash.Status())
}

func TestServesStaticFilesAndPing(t *testing.T) {
	srv, _, root := newFixture(t)
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	resp, err = http.Get(ts.URL + "/Artist/one.mp3")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, data, 64)

	resp, err = http.Get(ts.URL + "/Artist/missing.mp3")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPingFailsWhenRootDisappears(t *testing.T) {
	srv, _, root := newFixture(t)
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	require.NoError(t, os.RemoveAll(root))
	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStaticRejectsTraversal(t *testing.T) {
	srv, _, root := newFixture(t)
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/Artist/x", nil)
	require.NoError(t, err)
	req.URL.Opaque = "/../../etc/passwd"
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStaticRejectsSymlinkEscape(t *testing.T) {
	srv, _, root := newFixture(t)
	outside := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(outside, "secret.mp3"), 8)
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.mp3"), filepath.Join(root, "link.mp3")))
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/link.mp3")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConvertEndpoint(t *testing.T) {
	srv, conv, root := newFixture(t)
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	body, _ := json.Marshal(audioserver.ConvertRequest{TrackDefinition: &library.Track{TrackID: 7, PersistentID: "ABC"}})
	resp, err := http.Post(ts.URL+"/convert-to-mp3", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, filepath.Join(conv.folder.Path, "ABC", "out.mp3"), string(out))

	resp, err = http.Get(ts.URL + "/all-converted")
	require.NoError(t, err)
	var all map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	_ = resp.Body.Close()
	assert.Equal(t, map[string]string{"ABC": string(out)}, all)
}

func TestConvertEndpointErrors(t *testing.T) {
	srv, conv, root := newFixture(t)
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/convert-to-mp3", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, _ := json.Marshal(audioserver.ConvertRequest{TrackDefinition: &library.Track{TrackID: 1}})
	for marker, status := range map[error]int{
		services.ErrNotFound:    http.StatusNotFound,
		services.ErrUnsupported: http.StatusNotImplemented,
	} {
		conv.err = services.Wrap(marker, "convert", "convert", "", nil)
		resp, err := http.Post(ts.URL+"/convert-to-mp3", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, marker.Error())
	}
}

func TestConvertedEndpointServesOutput(t *testing.T) {
	srv, conv, root := newFixture(t)
	require.NoError(t, srv.SetRoot(root))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	output := filepath.Join(conv.folder.Path, "ABC", "song.mp3")
	testsupport.WriteFile(t, output, 16)

	url, err := audioserver.ConvertedURL(ts.URL, conv.folder.Path, output)
	require.NoError(t, err)
	resp, err := http.Get(url)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, data, 16)

	resp, err = http.Get(ts.URL + "/converted/ABC/missing.mp3")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrackURL(t *testing.T) {
	location := library.PathToLocation("/music/Artist/My Song.mp3")
	got, err := audioserver.TrackURL("http://127.0.0.1:8457/", "/music", location)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8457/Artist/My%20Song.mp3", got)

	_, err = audioserver.TrackURL("http://x", "/elsewhere", location)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	_, err := audioserver.Transition(audioserver.StatusStopped, audioserver.StatusStarted)
	assert.ErrorIs(t, err, services.ErrIllegalTransition)
	next, err := audioserver.Transition(audioserver.StatusStarted, audioserver.StatusStarting)
	require.NoError(t, err)
	assert.Equal(t, audioserver.StatusStarting, next)
}

func TestTransitionStartedCanFail(t *testing.T) {
	next, err := audioserver.Transition(audioserver.StatusStarted, audioserver.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, audioserver.StatusFailed, next)

	_, err = audioserver.Transition(audioserver.StatusStopped, audioserver.StatusFailed)
	assert.ErrorIs(t, err, services.ErrIllegalTransition)
}
