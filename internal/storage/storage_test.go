package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courier/internal"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	url, err := s.Put(ctx, "runs/2026/03/run-1.log", strings.NewReader("a@x.com - Sent\n"), "text/plain")
	require.NoError(t, err)
	assert.FileExists(t, url)

	ok, err := s.Exists(ctx, "runs/2026/03/run-1.log")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, "runs/2026/03/run-1.log")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "a@x.com - Sent\n", string(data))

	require.NoError(t, s.Delete(ctx, "runs/2026/03/run-1.log"))
	require.NoError(t, s.Delete(ctx, "runs/2026/03/run-1.log"))

	_, err = s.Get(ctx, "runs/2026/03/run-1.log")
	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "not_found", sErr.ErrorCode())
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside", "/etc/passwd", "a/../../b"} {
		t.Run(key, func(t *testing.T) {
			_, err := s.Put(context.Background(), key, strings.NewReader("x"), "text/plain")
			var sErr *StorageError
			require.ErrorAs(t, err, &sErr)
			assert.Equal(t, "invalid", sErr.ErrorCode())
		})
	}
}

func TestNewArchive(t *testing.T) {
	ctx := context.Background()

	s, err := NewArchive(ctx, internal.ArchiveConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewArchive(ctx, internal.ArchiveConfig{Provider: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewArchive(ctx, internal.ArchiveConfig{Provider: "r2"})
	assert.ErrorIs(t, err, ErrR2AccountIDRequired)

	_, err = NewArchive(ctx, internal.ArchiveConfig{Provider: "gcs"})
	assert.ErrorContains(t, err, "unknown storage provider: gcs")
}

func TestS3Storage_Put(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body, ctype = r.Method, r.URL.Path, string(data), r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewS3Storage(context.Background(), S3Config{
		Region:      "auto",
		Endpoint:    srv.URL,
		AccessKeyID: "key",
		SecretKey:   "secret",
		BucketName:  "archive",
		PublicURL:   "https://files.example.com/",
		PathStyle:   true,
	})
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "runs/run-1.log", strings.NewReader("a@x.com - Sent\n"), "text/plain")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/archive/runs/run-1.log", path)
	assert.Contains(t, body, "a@x.com - Sent")
	assert.Equal(t, "text/plain", ctype)
	assert.Equal(t, "https://files.example.com/runs/run-1.log", url)
}

func TestWorkspace_SaveAndRemove(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	dir, err := ws.Open("run-1")
	require.NoError(t, err)

	first, err := dir.Save("../../Brochure 2026.pdf", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := dir.Save("Brochure 2026.pdf", strings.NewReader("two"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir.Path(), "Brochure_2026.pdf"), first)
	assert.Equal(t, filepath.Join(dir.Path(), "Brochure_2026_1.pdf"), second)

	_, err = ws.Open("run-1")
	assert.Error(t, err, "a run directory is never shared")

	require.NoError(t, dir.Remove())
	require.NoError(t, dir.Remove())
	_, err = os.Stat(dir.Path())
	assert.True(t, os.IsNotExist(err))

	_, err = dir.Save("late.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrWorkspaceClosed)
}

func TestWorkspace_InvalidRunID(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../x", "a/b", strings.Repeat("a", 65)} {
		_, err := ws.Open(id)
		assert.ErrorIs(t, err, ErrInvalidRunID, id)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"poster.png":          "poster.png",
		"My Poster.PNG":       "My_Poster.PNG",
		`C:\Users\me\doc.pdf`: "doc.pdf",
		"../../etc/passwd":    "passwd",
		".hidden":             "hidden",
		"résumé.pdf":          "r_sum_.pdf",
		"":                    "upload",
		"/":                   "upload",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, SanitizeFilename(in))
		})
	}
}
