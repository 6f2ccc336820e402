package stage_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/dataq-tools/pulseweb/internal/stage"
)

func TestInterpreterExplicit(t *testing.T) {
	t.Parallel()

	interpreter := stage.NewInterpreter("/opt/python/bin/python3.12")
	cmd, err := interpreter.Command(t.Context())
	require.NoError(t, err)
	require.Equal(t, "/opt/python/bin/python3.12", cmd)
}

func TestInterpreterProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("probe order and fake interpreter differ on windows")
	}

	dir := t.TempDir()
	fake := filepath.Join(dir, "python3")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir)

	interpreter := stage.NewInterpreter("")
	cmd, err := interpreter.Command(t.Context())
	require.NoError(t, err)
	require.Equal(t, "python3", cmd)

	t.Run("cached across calls", func(t *testing.T) {
		require.NoError(t, os.Remove(fake))
		cmd, err := interpreter.Command(t.Context())
		require.NoError(t, err)
		require.Equal(t, "python3", cmd)
	})

	t.Run("reset invalidates", func(t *testing.T) {
		interpreter.Reset()
		_, err := interpreter.Command(t.Context())
		require.ErrorIs(t, err, model.ErrInterpreterNotFound)
	})
}

func TestInterpreterNotFound(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("probe order differs on windows")
	}

	t.Setenv("PATH", t.TempDir())

	interpreter := stage.NewInterpreter("")
	_, err := interpreter.Command(t.Context())
	require.ErrorIs(t, err, model.ErrInterpreterNotFound)

	// the negative result is cached as well
	_, err = interpreter.Command(t.Context())
	require.ErrorIs(t, err, model.ErrInterpreterNotFound)
}
