package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/oshokin/cul-updater/internal/domain/release"
	"github.com/oshokin/cul-updater/internal/logger"
)

// zipMagic is the local file header signature every zip archive starts with.
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

const assetURL = "https://github.com/boringstudents/CHMLFRP-UI-Launcher/releases/download/v1.6.0/CUL.zip"

// mirrorServer serves mirrors under /<name>/..., answering with the status configured per name.
type mirrorServer struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	status map[string]int
	paths  []string
}

func newMirrorServer(t *testing.T, status map[string]int) *mirrorServer {
	t.Helper()

	ms := &mirrorServer{hits: map[string]int{}, status: status}

	// A bare handler keeps the embedded "https://" in the path intact; ServeMux would redirect it.
	ms.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

		ms.mu.Lock()
		ms.hits[name]++
		ms.paths = append(ms.paths, rest)
		code := ms.status[name]
		ms.mu.Unlock()

		if code != http.StatusOK {
			http.Error(w, "mirror down", code)
			return
		}

		_, _ = w.Write(zipMagic)
	}))
	t.Cleanup(ms.Close)

	return ms
}

func (ms *mirrorServer) prefix(name string) string {
	return strings.TrimPrefix(ms.URL, "https://") + "/" + name
}

func newRelease(tag string, assets ...domain.Asset) *domain.Release {
	return &domain.Release{TagName: tag, Assets: assets}
}

// observe returns a context whose logger records entries.
func observe() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.ToContext(context.Background(), zap.New(core).Sugar()), logs
}

// TestBuildURLs prefixes the original URL in prefix order.
func TestBuildURLs(t *testing.T) {
	t.Parallel()

	urls := BuildURLs([]string{"gh.llkk.cc", "ghproxy.net"}, assetURL)
	require.Equal(t, []string{
		"https://gh.llkk.cc/" + assetURL,
		"https://ghproxy.net/" + assetURL,
	}, urls)
	require.Empty(t, BuildURLs(nil, assetURL))
}

// TestOutputPath builds CUL{tag}.zip and rejects tags that escape the directory.
func TestOutputPath(t *testing.T) {
	t.Parallel()

	d := New(&Options{OutputDir: "out"})

	path, err := d.OutputPath("v1.6.0")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("out", "CULv1.6.0.zip"), path)

	for _, tag := range []string{"", "../x", `a\b`, "a/b", ".."} {
		_, err = d.OutputPath(tag)
		require.ErrorIs(t, err, ErrInvalidTag, tag)
	}
}

// TestDownload_LastMirrorWins fails the first mirrors and saves the last one's bytes.
func TestDownload_LastMirrorWins(t *testing.T) {
	t.Parallel()

	ms := newMirrorServer(t, map[string]int{
		"m1": http.StatusInternalServerError,
		"m2": http.StatusNotFound,
		"m3": http.StatusBadGateway,
		"m4": http.StatusOK,
	})

	dir := t.TempDir()
	d := New(&Options{
		Prefixes:   []string{ms.prefix("m1"), ms.prefix("m2"), ms.prefix("m3"), ms.prefix("m4")},
		OutputDir:  dir,
		HTTPClient: ms.Client(),
	})

	result, err := d.Download(context.Background(), newRelease("1.6.0", domain.Asset{BrowserDownloadURL: assetURL}))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "CUL1.6.0.zip"), result.Path)
	require.Equal(t, "https://"+ms.prefix("m4")+"/"+assetURL, result.URL)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.Equal(t, zipMagic, data)

	require.Equal(t, map[string]int{"m1": 1, "m2": 1, "m3": 1, "m4": 1}, ms.hits)
	require.Equal(t, assetURL, ms.paths[3])
}

// TestDownload_StopsAfterSuccess never touches mirrors after the one that answered.
func TestDownload_StopsAfterSuccess(t *testing.T) {
	t.Parallel()

	ms := newMirrorServer(t, map[string]int{"m1": http.StatusOK, "m2": http.StatusOK})

	d := New(&Options{
		Prefixes:   []string{ms.prefix("m1"), ms.prefix("m2")},
		OutputDir:  t.TempDir(),
		HTTPClient: ms.Client(),
	})

	assets := []domain.Asset{{BrowserDownloadURL: assetURL}, {BrowserDownloadURL: assetURL + ".sig"}}

	_, err := d.Download(context.Background(), newRelease("v1.6.0", assets...))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"m1": 1}, ms.hits)
}

// TestDownload_OverwritesExistingFile replaces a previous package with the same tag.
func TestDownload_OverwritesExistingFile(t *testing.T) {
	t.Parallel()

	ms := newMirrorServer(t, map[string]int{"m1": http.StatusOK})
	dir := t.TempDir()
	target := filepath.Join(dir, "CULv1.6.0.zip")
	require.NoError(t, os.WriteFile(target, []byte("stale contents"), 0o600))

	d := New(&Options{Prefixes: []string{ms.prefix("m1")}, OutputDir: dir, HTTPClient: ms.Client()})

	_, err := d.Download(context.Background(), newRelease("v1.6.0", domain.Asset{BrowserDownloadURL: assetURL}))
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, zipMagic, data)
}

// TestDownload_NoValidLink writes nothing and logs when no asset has a link.
func TestDownload_NoValidLink(t *testing.T) {
	t.Parallel()

	ctx, logs := observe()
	dir := t.TempDir()
	d := New(&Options{Prefixes: []string{"gh.llkk.cc"}, OutputDir: dir})

	_, err := d.Download(ctx, newRelease("v1.6.0", domain.Asset{Name: "a"}, domain.Asset{Name: "b"}))
	require.ErrorIs(t, err, ErrNoDownloadURL)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.Equal(t, 2, logs.FilterMessage("No valid download link for asset, skipping").Len())
	require.Equal(t, 1, logs.FilterMessage("No valid download link found in the release").Len())

	_, err = d.Download(ctx, newRelease("v1.6.0"))
	require.ErrorIs(t, err, ErrNoDownloadURL)
}

// TestDownload_FirstAssetOnly does not fall back to later assets by default.
func TestDownload_FirstAssetOnly(t *testing.T) {
	t.Parallel()

	var seen []string

	var mu sync.Mutex

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()

		if strings.HasSuffix(r.URL.Path, "second.zip") {
			_, _ = w.Write(zipMagic)
			return
		}

		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	prefix := strings.TrimPrefix(ts.URL, "https://")
	assets := []domain.Asset{
		{BrowserDownloadURL: "https://github.com/first.zip"},
		{BrowserDownloadURL: "https://github.com/second.zip"},
	}

	ctx, logs := observe()
	dir := t.TempDir()
	d := New(&Options{Prefixes: []string{prefix, prefix}, OutputDir: dir, HTTPClient: ts.Client()})

	_, err := d.Download(ctx, newRelease("v1.6.0", assets...))
	require.ErrorIs(t, err, ErrAllMirrorsFailed)
	require.Len(t, seen, 2)
	require.Equal(t, 1, logs.FilterMessage("All mirror links failed").Len())

	_, err = os.Stat(filepath.Join(dir, "CULv1.6.0.zip"))
	require.ErrorIs(t, err, os.ErrNotExist)

	// With TryAllAssets the second asset is attempted too.
	d = New(&Options{
		Prefixes:     []string{prefix, prefix},
		OutputDir:    dir,
		HTTPClient:   ts.Client(),
		TryAllAssets: true,
	})

	result, err := d.Download(context.Background(), newRelease("v1.6.0", assets...))
	require.NoError(t, err)
	require.Equal(t, "https://github.com/second.zip", result.Asset.BrowserDownloadURL)
}

// TestDownload_SlowMirrorTimesOut moves past a mirror that exceeds the timeout.
func TestDownload_SlowMirrorTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/slow/") {
			select {
			case <-release:
			case <-r.Context().Done():
			}

			return
		}

		_, _ = w.Write(zipMagic)
	}))
	defer ts.Close()
	defer close(release)

	host := strings.TrimPrefix(ts.URL, "https://")
	d := New(&Options{
		Prefixes:   []string{host + "/slow", host + "/fast"},
		Timeout:    100 * time.Millisecond,
		OutputDir:  t.TempDir(),
		HTTPClient: ts.Client(),
	})

	result, err := d.Download(context.Background(), newRelease("v1.6.0", domain.Asset{BrowserDownloadURL: assetURL}))
	require.NoError(t, err)
	require.Contains(t, result.URL, "/fast/")
}

// TestDownload_FailedWriteLeavesNoFile removes the placeholder when the package cannot be written.
func TestDownload_FailedWriteLeavesNoFile(t *testing.T) {
	t.Parallel()

	ms := newMirrorServer(t, map[string]int{"m1": http.StatusOK})
	dir := t.TempDir()

	// go-update stages the body in ".<name>.new"; a directory there makes the write fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".CULv1.6.0.zip.new"), 0o700))

	d := New(&Options{Prefixes: []string{ms.prefix("m1")}, OutputDir: dir, HTTPClient: ms.Client()})

	_, err := d.Download(context.Background(), newRelease("v1.6.0", domain.Asset{BrowserDownloadURL: assetURL}))
	require.ErrorIs(t, err, ErrAllMirrorsFailed)
	require.Equal(t, 1, ms.hits["m1"])
	require.NoFileExists(t, filepath.Join(dir, "CULv1.6.0.zip"))
}

// TestSave_KeepsExistingFileOnFailure leaves a previous package in place when the write fails.
func TestSave_KeepsExistingFileOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "CULv1.6.0.zip")
	require.NoError(t, os.WriteFile(target, []byte("previous"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".CULv1.6.0.zip.new"), 0o700))

	require.Error(t, save(target, zipMagic))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("previous"), data)
}

// TestDownload_NilRelease reports no download link.
func TestDownload_NilRelease(t *testing.T) {
	t.Parallel()

	_, err := New(&Options{OutputDir: t.TempDir()}).Download(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoDownloadURL)
}
