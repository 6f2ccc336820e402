package model

import (
	"errors"
	"fmt"
)

// Stage names as they appear in logs, errors and the pipeline sequence.
const (
	StageConvert = "convert"
	StageAnalyze = "analyze"
	StageChart   = "chart"
)

var (
	// ErrTooBig rejects uploads above the configured body limit.
	ErrTooBig = errors.New("file too big")

	// ErrInterpreterNotFound means no candidate python command answered
	// the version probe. No process was spawned.
	ErrInterpreterNotFound = errors.New("no usable python interpreter found, install python3 and make sure it is on PATH")

	// ErrNotFound is returned when a download path resolves to nothing.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects an upload before any stage runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// StageError reports one external stage which exited non-zero, timed out
// or could not be spawned. Stderr keeps the captured diagnostic text for
// the server log and the error response.
type StageError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s: exit code %d", e.Stage, e.ExitCode)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ArtifactMissingError reports a stage which exited zero but left no
// expected output file in the session directory.
type ArtifactMissingError struct {
	Stage string
	Kind  string // "spreadsheet" or "chart"
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("stage %s produced no %s", e.Stage, e.Kind)
}
