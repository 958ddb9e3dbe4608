package download_test

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/reqpipe/reqpipe/pipeline/download"
)

func TestSink_CommitRenamesAtomically(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	s, err := download.NewSink(dest, nil)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}

	if _, err := s.Write([]byte("hello ")); err != nil {
		t.Fatalf("writing: %v", err)
	}
	if _, err := s.Write([]byte("sink")); err != nil {
		t.Fatalf("writing: %v", err)
	}

	if err := s.Commit(10); err != nil {
		t.Fatalf("committing: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != "hello sink" {
		t.Errorf("expected %q, got %q", "hello sink", got)
	}
}

func TestSink_CommitUnknownLength(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	s, err := download.NewSink(dest, nil)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	if _, err := s.Write([]byte("data")); err != nil {
		t.Fatalf("writing: %v", err)
	}

	// A negative declared length means unknown and skips verification.
	if err := s.Commit(-1); err != nil {
		t.Fatalf("committing: %v", err)
	}
}

func TestSink_CommitLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	s, err := download.NewSink(dest, nil)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	if _, err := s.Write([]byte("short")); err != nil {
		t.Fatalf("writing: %v", err)
	}

	if err := s.Commit(100); !errors.Is(err, download.ErrContentLengthMismatch) {
		t.Fatalf("expected content length mismatch, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected temp file removed after failure, found %d entries", len(entries))
	}
}

func TestSink_Checksum(t *testing.T) {
	body := []byte("verified content")
	sum := sha256.Sum256(body)

	t.Run("match", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.bin")
		s, err := download.NewSink(dest, nil, download.WithChecksum(sha256.New(), hex.EncodeToString(sum[:])))
		if err != nil {
			t.Fatalf("creating sink: %v", err)
		}
		if _, err := s.Write(body); err != nil {
			t.Fatalf("writing: %v", err)
		}
		if err := s.Commit(int64(len(body))); err != nil {
			t.Fatalf("committing: %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.bin")
		s, err := download.NewSink(dest, nil, download.WithChecksum(sha256.New(), "deadbeef"))
		if err != nil {
			t.Fatalf("creating sink: %v", err)
		}
		if _, err := s.Write(body); err != nil {
			t.Fatalf("writing: %v", err)
		}
		if err := s.Commit(int64(len(body))); !errors.Is(err, download.ErrChecksumMismatch) {
			t.Fatalf("expected checksum mismatch, got %v", err)
		}
	})
}

func TestSink_AbortRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	s, err := download.NewSink(dest, nil)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	if _, err := s.Write([]byte("partial")); err != nil {
		t.Fatalf("writing: %v", err)
	}

	s.Abort()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory after abort, found %d entries", len(entries))
	}
}

func TestNewSink_SkipExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seeding destination: %v", err)
	}

	if _, err := download.NewSink(dest, nil, download.WithSkipExisting()); !errors.Is(err, download.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestNewSink_EmptyDest(t *testing.T) {
	if _, err := download.NewSink("", nil); err == nil {
		t.Error("expected an error for empty destination")
	}
}
