// Package session owns the per-upload working directories under the
// outputs root: creation, artifact placement, download resolution and
// retention-based reaping.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataq-tools/pulseweb/internal/model"
)

// Session is one upload's isolated working directory. The ID names the
// directory and is echoed back to the client to address downloads.
// Sessions never share a directory; IDs are random, not content-derived.
type Session struct {
	ID       string
	Dir      string
	Filename string // original upload name, as stored in the directory
	Created  time.Time
}

// ArtifactPath returns the stored copy of the uploaded artifact.
func (s Session) ArtifactPath() string {
	return filepath.Join(s.Dir, s.Filename)
}

// Store allocates and reaps session directories under one outputs root.
// The root is only ever listed by the reaper and extended by uniquely
// named directory creation, so no locking is needed.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating outputs root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Create allocates a fresh uniquely named directory and copies the
// uploaded artifact into it. The source file is copied, not moved; the
// intake copy remains the caller's to clean up.
func (s *Store) Create(ctx context.Context, artifact, filename string) (Session, error) {
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return Session{}, fmt.Errorf("unusable upload filename %q", filename)
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Session{}, fmt.Errorf("creating session dir: %w", err)
	}

	if err := copyFile(artifact, filepath.Join(dir, filename)); err != nil {
		return Session{}, fmt.Errorf("storing artifact: %w", err)
	}

	session := Session{
		ID:       id,
		Dir:      dir,
		Filename: filename,
		Created:  time.Now().UTC(),
	}
	slog.DebugContext(ctx, "session created", "session_id", id, "filename", filename)
	return session, nil
}

// Resolve returns the on-disk path for a download request. The literal
// name wins; when absent, the session directory is searched for any file
// carrying the chart marker. model.ErrNotFound when neither resolves or
// the session does not exist.
func (s *Store) Resolve(id, name string) (string, error) {
	dir := filepath.Join(s.root, filepath.Base(id))

	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", model.ErrNotFound
	}
	defer func() {
		_ = root.Close()
	}()

	if name != "" {
		if info, err := root.Stat(name); err == nil && info.Mode().IsRegular() {
			return filepath.Join(dir, name), nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", model.ErrNotFound
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.Contains(entry.Name(), model.ChartMarker) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", model.ErrNotFound
}

// Reap deletes every session directory whose last modification is older
// than now-retention. A directory exactly at the threshold is kept.
// Deletion failures are logged and skipped; the scan never aborts.
func (s *Store) Reap(ctx context.Context, now time.Time, retention time.Duration) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		slog.ErrorContext(ctx, "listing outputs root failed", "root", s.root, "error", err)
		return 0
	}

	reaped := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			slog.WarnContext(ctx, "stat session dir failed, skipping", "session_id", entry.Name(), "error", err)
			continue
		}
		if now.Sub(info.ModTime()) <= retention {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.WarnContext(ctx, "removing session dir failed, skipping", "session_id", entry.Name(), "error", err)
			continue
		}
		slog.InfoContext(ctx, "session reaped", "session_id", entry.Name(), "age", now.Sub(info.ModTime()).String())
		reaped++
	}
	return reaped
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
