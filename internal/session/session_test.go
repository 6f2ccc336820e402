package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/dataq-tools/pulseweb/internal/session"
)

func newStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := session.NewStore(root)
	require.NoError(t, err)
	return store, root
}

func writeUpload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.wdq")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCreate(t *testing.T) {
	t.Parallel()
	store, root := newStore(t)
	upload := writeUpload(t, "binary payload")

	sess, err := store.Create(t.Context(), upload, "recording.wdq")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, filepath.Join(root, sess.ID), sess.Dir)
	require.Equal(t, "recording.wdq", sess.Filename)

	// copied, not moved
	stored, err := os.ReadFile(sess.ArtifactPath())
	require.NoError(t, err)
	require.Equal(t, "binary payload", string(stored))
	_, err = os.Stat(upload)
	require.NoError(t, err)
}

func TestCreateUniqueDirs(t *testing.T) {
	t.Parallel()
	store, _ := newStore(t)
	upload := writeUpload(t, "x")

	seen := make(map[string]bool)
	for range 20 {
		sess, err := store.Create(t.Context(), upload, "recording.wdq")
		require.NoError(t, err)
		require.False(t, seen[sess.Dir], "directory %s allocated twice", sess.Dir)
		seen[sess.Dir] = true
	}
}

func TestCreateStripsPath(t *testing.T) {
	t.Parallel()
	store, root := newStore(t)
	upload := writeUpload(t, "x")

	sess, err := store.Create(t.Context(), upload, "../../etc/recording.wdq")
	require.NoError(t, err)
	require.Equal(t, "recording.wdq", sess.Filename)
	require.True(t, filepath.IsLocal(sess.Dir[len(root)+1:]))
}

func TestResolve(t *testing.T) {
	t.Parallel()
	store, _ := newStore(t)
	upload := writeUpload(t, "x")

	sess, err := store.Create(t.Context(), upload, "recording.wdq")
	require.NoError(t, err)

	chart := filepath.Join(sess.Dir, "recording_with_chart.xlsx")
	require.NoError(t, os.WriteFile(chart, []byte("chart"), 0o644))

	t.Run("literal name", func(t *testing.T) {
		path, err := store.Resolve(sess.ID, "recording.wdq")
		require.NoError(t, err)
		require.Equal(t, sess.ArtifactPath(), path)
	})

	t.Run("chart fallback", func(t *testing.T) {
		path, err := store.Resolve(sess.ID, "no-such-file.xlsx")
		require.NoError(t, err)
		require.Equal(t, chart, path)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := store.Resolve("nope", "recording.wdq")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("traversal stays inside the session", func(t *testing.T) {
		path, err := store.Resolve(sess.ID, "../"+sess.ID+"/recording.wdq")
		if err == nil {
			// only acceptable resolution is the chart fallback
			require.Equal(t, chart, path)
		} else {
			require.ErrorIs(t, err, model.ErrNotFound)
		}
	})
}

func TestReap(t *testing.T) {
	t.Parallel()
	store, root := newStore(t)
	upload := writeUpload(t, "x")

	retention := 24 * time.Hour
	now := time.Now()

	old, err := store.Create(t.Context(), upload, "recording.wdq")
	require.NoError(t, err)
	atThreshold, err := store.Create(t.Context(), upload, "recording.wdq")
	require.NoError(t, err)
	fresh, err := store.Create(t.Context(), upload, "recording.wdq")
	require.NoError(t, err)

	require.NoError(t, os.Chtimes(old.Dir, now, now.Add(-retention-time.Second)))
	// exactly at the threshold is kept
	require.NoError(t, os.Chtimes(atThreshold.Dir, now, now.Add(-retention)))

	reaped := store.Reap(t.Context(), now, retention)
	require.Equal(t, 1, reaped)

	_, err = os.Stat(old.Dir)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(atThreshold.Dir)
	require.NoError(t, err)
	_, err = os.Stat(fresh.Dir)
	require.NoError(t, err)

	// stray files in the outputs root are not sessions and are left alone
	stray := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("keep"), 0o644))
	require.Zero(t, store.Reap(t.Context(), now.Add(100*retention), retention))

	_, err = os.Stat(stray)
	require.NoError(t, err)
}

func TestReaperSchedule(t *testing.T) {
	store, _ := newStore(t)

	t.Run("default hourly", func(t *testing.T) {
		reaper, err := session.NewReaper(store, time.Hour, nil)
		require.NoError(t, err)
		reaper.Start()
		require.NoError(t, reaper.Shutdown())
	})

	t.Run("cron", func(t *testing.T) {
		reaper, err := session.NewReaper(store, time.Hour, &model.ReapSchedule{Cron: "*/30 * * * *"})
		require.NoError(t, err)
		require.NoError(t, reaper.Shutdown())
	})

	t.Run("duration", func(t *testing.T) {
		reaper, err := session.NewReaper(store, time.Hour, &model.ReapSchedule{Duration: "PT1H"})
		require.NoError(t, err)
		require.NoError(t, reaper.Shutdown())
	})

	t.Run("bad cron", func(t *testing.T) {
		_, err := session.NewReaper(store, time.Hour, &model.ReapSchedule{Cron: "often"})
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := session.NewReaper(store, time.Hour, &model.ReapSchedule{Duration: "1h"})
		require.Error(t, err)
	})
}
