// Package stage executes one external processing stage as a subprocess
// and reports a structured result. It knows nothing about the pipeline
// sequence; ordering and gating live in internal/pipeline.
package stage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// Command describes one stage invocation. Transient: exists only for the
// duration of a single run.
type Command struct {
	Stage   string   // model.StageConvert, ...
	Script  string   // path to the collaborator script
	Args    []string // script arguments, e.g. the pinned target spreadsheet
	Dir     string   // session working directory
	Env     []string // nil inherits the process environment
	Timeout time.Duration
}

// Result is the captured outcome of one stage run. Immutable once
// returned; stdout feeds the report parser or is discarded.
type Result struct {
	Stage    string
	Path     string // resolved interpreter
	Args     []string
	Started  time.Time
	Stopped  time.Time
	ExitCode int // -1 when no process ran
	Stdout   *bytes.Buffer
	Stderr   *bytes.Buffer
	Err      error
}

// Success reports whether the process was spawned and exited zero.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// TimedOut reports whether the run was killed by its execution limit.
func (r Result) TimedOut() bool {
	return errors.Is(r.Err, context.DeadlineExceeded)
}

// Runner spawns stage subprocesses under a resolved interpreter.
type Runner struct {
	interpreter *Interpreter
}

func NewRunner(interpreter *Interpreter) *Runner {
	return &Runner{interpreter: interpreter}
}

// Run resolves the interpreter, spawns the stage and blocks until the
// process exits or the timeout fires. Never retries. All failure detail
// stays in the Result; the caller decides what is fatal.
func (r *Runner) Run(ctx context.Context, proto Command) Result {
	result := Result{
		Stage:    proto.Stage,
		Args:     append([]string{proto.Script}, proto.Args...),
		ExitCode: -1,
		Stdout:   &bytes.Buffer{},
		Stderr:   &bytes.Buffer{},
	}

	python, err := r.interpreter.Command(ctx)
	if err != nil {
		// fail fast, no process spawned
		result.Err = err
		return result
	}
	result.Path = python

	if proto.Timeout == 0 {
		slog.WarnContext(ctx, "stage has no timeout", "stage", proto.Stage)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, python, result.Args...)
	cmd.Dir = proto.Dir
	cmd.Env = proto.Env
	cmd.Stdout = result.Stdout
	cmd.Stderr = result.Stderr

	result.Started = time.Now().UTC()
	err = cmd.Run()
	result.Stopped = time.Now().UTC()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		err = ctxErr
	}
	result.Err = err

	slog.DebugContext(ctx, "stage finished",
		"stage", proto.Stage,
		"command", python,
		"exit_code", result.ExitCode,
		"elapsed", result.Stopped.Sub(result.Started).String(),
	)
	return result
}
