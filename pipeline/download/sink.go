// Package download provides a disk sink for streamed HTTP response
// bodies, with optional checksum validation.
package download

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Sink streams body bytes to a temp file in the destination's
// directory. [Sink.Commit] verifies the result and atomically renames
// it into place; [Sink.Abort] removes the temp file. Exactly one of the
// two must be called.
//
// A Sink is written from a single goroutine; it is not safe for
// concurrent writes.
type Sink struct {
	file     *os.File
	dest     string
	logger   *slog.Logger
	checksum *checksumVerifier
	written  int64
}

// NewSink creates the temp file for destPath. A nil logger falls back
// to [slog.Default].
func NewSink(destPath string, logger *slog.Logger, optFns ...Option) (*Sink, error) {
	if destPath == "" {
		return nil, errors.New("destPath must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			return nil, ErrExists
		}
	}

	file, err := os.CreateTemp(filepath.Dir(destPath), ".reqpipe-dl-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	return &Sink{
		file:     file,
		dest:     destPath,
		logger:   logger,
		checksum: opts.checksum,
	}, nil
}

func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing temp file: %w", err)
	}

	if s.checksum != nil {
		if _, err := s.checksum.Write(p[:n]); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Commit verifies the written byte count against contentLength (when
// declared), verifies the checksum if one was configured, syncs, and
// renames the temp file to the destination. On any failure the temp
// file is removed.
func (s *Sink) Commit(contentLength int64) error {
	if contentLength >= 0 && s.written != contentLength {
		s.Abort()
		return &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, s.written),
		}
	}

	if err := s.checksum.Verify(); err != nil {
		s.Abort()
		return err
	}

	if err := s.file.Sync(); err != nil {
		s.Abort()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		s.remove()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(s.file.Name(), s.dest); err != nil {
		s.remove()
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Abort discards everything written so far and removes the temp file.
func (s *Sink) Abort() {
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Error("closing temp file", "error", err)
	}
	s.remove()
}

func (s *Sink) remove() {
	if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("failed to remove temp file", "error", err)
	}
}
