package pipeline_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reqpipe/reqpipe/pipeline"
	"github.com/reqpipe/reqpipe/pipeline/download"
)

func downloadServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func TestEngine_Download(t *testing.T) {
	body := []byte("downloaded file content")
	ts := downloadServer(t, http.StatusOK, body)

	e, err := pipeline.Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "file.bin")
	d := testDescriptor(t, ts.URL, pipeline.WithoutContentTypeCheck())

	if err := e.Download(context.Background(), d, dest); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("expected %q, got %q", body, got)
	}
}

func TestEngine_DownloadServerFailure(t *testing.T) {
	ts := downloadServer(t, http.StatusNotFound, []byte("missing"))

	e, err := pipeline.Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")
	d := testDescriptor(t, ts.URL, pipeline.WithoutContentTypeCheck())

	dlErr := e.Download(context.Background(), d, dest)
	if !errors.Is(dlErr, pipeline.ErrServerFailure) {
		t.Fatalf("expected server failure, got %v", dlErr)
	}

	// Neither the destination nor any temp file may remain.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory after failed download, found %d entries", len(entries))
	}
}

func TestEngine_DownloadChecksum(t *testing.T) {
	body := []byte("checksummed content")
	sum := sha256.Sum256(body)
	ts := downloadServer(t, http.StatusOK, body)

	e, err := pipeline.Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	d := testDescriptor(t, ts.URL, pipeline.WithoutContentTypeCheck())

	t.Run("matching checksum succeeds", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "file.bin")
		err := e.Download(context.Background(), d, dest,
			download.WithChecksum(sha256.New(), hex.EncodeToString(sum[:])),
		)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("mismatched checksum fails", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "file.bin")
		err := e.Download(context.Background(), d, dest,
			download.WithChecksum(sha256.New(), "deadbeef"),
		)
		if !errors.Is(err, download.ErrChecksumMismatch) {
			t.Fatalf("expected checksum mismatch, got %v", err)
		}
		if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
			t.Error("expected no destination file after checksum failure")
		}
	})
}

func TestEngine_DownloadSkipExisting(t *testing.T) {
	ts := downloadServer(t, http.StatusOK, []byte("fresh"))

	e, err := pipeline.Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(dest, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seeding destination: %v", err)
	}

	d := testDescriptor(t, ts.URL, pipeline.WithoutContentTypeCheck())
	if err := e.Download(context.Background(), d, dest, download.WithSkipExisting()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != "existing" {
		t.Errorf("expected existing content untouched, got %q", got)
	}
}

func TestEngine_DownloadProgress(t *testing.T) {
	body := []byte("progress-tracked download body")
	ts := downloadServer(t, http.StatusOK, body)

	e, err := pipeline.Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	progressed := make(chan pipeline.Progress, 64)
	d := testDescriptor(t, ts.URL,
		pipeline.WithoutContentTypeCheck(),
		pipeline.WithProgress(func(p pipeline.Progress) { progressed <- p }),
	)

	dest := filepath.Join(t.TempDir(), "file.bin")
	if err := e.Download(context.Background(), d, dest); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	select {
	case p := <-progressed:
		if p.Received == 0 {
			t.Error("expected a non-zero received count")
		}
	case <-time.After(2 * time.Second):
		t.Error("expected at least one progress notification")
	}
}
