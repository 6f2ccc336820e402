package stage

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/dataq-tools/pulseweb/internal/model"
)

// candidates is the probe order for the interpreter command. Windows
// installs usually register the launcher-flavoured names first.
func candidates() []string {
	if runtime.GOOS == "windows" {
		return []string{"python", "python3", "py"}
	}
	return []string{"python3", "python"}
}

// Interpreter resolves the python command the stages run under. The probe
// runs `<candidate> --version` in order and the first success wins. The
// result is cached for the life of the process and invalidated only by
// Reset, so the probe cost is paid once, not per upload.
type Interpreter struct {
	mx       sync.Mutex
	explicit string
	command  string
	probed   bool
}

// NewInterpreter returns an Interpreter. A non-empty explicit command
// skips probing entirely and is used as-is.
func NewInterpreter(explicit string) *Interpreter {
	return &Interpreter{explicit: explicit}
}

// Command returns the resolved interpreter or model.ErrInterpreterNotFound
// when no candidate answers the version check.
func (i *Interpreter) Command(ctx context.Context) (string, error) {
	i.mx.Lock()
	defer i.mx.Unlock()

	if i.explicit != "" {
		return i.explicit, nil
	}
	if i.probed {
		if i.command == "" {
			return "", model.ErrInterpreterNotFound
		}
		return i.command, nil
	}

	i.probed = true
	for _, candidate := range candidates() {
		cmd := exec.CommandContext(ctx, candidate, "--version")
		if err := cmd.Run(); err != nil {
			slog.DebugContext(ctx, "interpreter probe failed", "command", candidate, "error", err)
			continue
		}
		slog.DebugContext(ctx, "interpreter resolved", "command", candidate)
		i.command = candidate
		return candidate, nil
	}
	return "", model.ErrInterpreterNotFound
}

// Reset drops the cached probe result. Explicit reconfiguration only.
func (i *Interpreter) Reset() {
	i.mx.Lock()
	defer i.mx.Unlock()
	i.command = ""
	i.probed = false
}
