// Package pipeline sequences the three external stages over one session's
// working directory: convert the uploaded recording to a spreadsheet,
// analyze it for pulses, embed a chart. Strictly sequential per session,
// fail-fast, no rollback of partial artifacts - the reaper cleans those up.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dataq-tools/pulseweb/internal/log"
	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/dataq-tools/pulseweb/internal/report"
	"github.com/dataq-tools/pulseweb/internal/session"
	"github.com/dataq-tools/pulseweb/internal/stage"
)

// Runner executes one external stage. *stage.Runner is the production
// implementation; tests inject fakes.
type Runner interface {
	Run(ctx context.Context, cmd stage.Command) stage.Result
}

// Config is the resolved pipeline configuration.
type Config struct {
	ScriptsDir    string
	Converter     string
	Analyzer      string
	Chart         string
	StageTimeout  time.Duration
	MaxConcurrent int64 // pipelines in flight at once; <=0 means 1
}

// Outcome is what a completed pipeline hands back: the scraped analysis
// and, when the chart stage left one, the downloadable chart artifact.
// An absent chart is degraded, not fatal: ChartFile stays empty.
type Outcome struct {
	Analysis  model.AnalysisRecord
	ChartFile string // basename within the session dir, "" when missing
}

type Orchestrator struct {
	runner Runner
	config Config
	gate   *semaphore.Weighted
}

func New(runner Runner, config Config) *Orchestrator {
	limit := config.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	return &Orchestrator{
		runner: runner,
		config: config,
		gate:   semaphore.NewWeighted(limit),
	}
}

// Process runs the three stages over the session directory. Each stage is
// gated on the previous one's success; the first failure is returned and
// later stages never run. Admission is capped by the concurrency gate -
// waiting respects ctx, so an abandoned request stops waiting.
func (o *Orchestrator) Process(ctx context.Context, sess session.Session) (Outcome, error) {
	if err := o.gate.Acquire(ctx, 1); err != nil {
		return Outcome{}, fmt.Errorf("waiting for pipeline slot: %w", err)
	}
	defer o.gate.Release(1)

	ctx = log.ContextAttrs(ctx, slog.String("session_id", sess.ID))

	// convert
	result := o.runner.Run(ctx, stage.Command{
		Stage:   model.StageConvert,
		Script:  filepath.Join(o.config.ScriptsDir, o.config.Converter),
		Args:    []string{sess.Filename},
		Dir:     sess.Dir,
		Timeout: o.config.StageTimeout,
	})
	if !result.Success() {
		return Outcome{}, stageError(ctx, result)
	}

	spreadsheet, ok := findSpreadsheet(sess.Dir)
	if !ok {
		err := &model.ArtifactMissingError{Stage: model.StageConvert, Kind: "spreadsheet"}
		slog.ErrorContext(ctx, "stage left no output artifact", "stage", model.StageConvert, "error", err)
		return Outcome{}, err
	}

	// analyze, pinned to the one spreadsheet the convert stage produced.
	// The analyzer discovers *.xlsx on its own when run bare; the explicit
	// argument avoids ambiguity once chart artifacts accumulate.
	result = o.runner.Run(ctx, stage.Command{
		Stage:   model.StageAnalyze,
		Script:  filepath.Join(o.config.ScriptsDir, o.config.Analyzer),
		Args:    []string{spreadsheet},
		Dir:     sess.Dir,
		Timeout: o.config.StageTimeout,
	})
	if !result.Success() {
		return Outcome{}, stageError(ctx, result)
	}
	analysis := report.Parse(result.Stdout.String())

	// chart - discovers the spreadsheet itself, skipping charted names
	result = o.runner.Run(ctx, stage.Command{
		Stage:   model.StageChart,
		Script:  filepath.Join(o.config.ScriptsDir, o.config.Chart),
		Dir:     sess.Dir,
		Timeout: o.config.StageTimeout,
	})
	if !result.Success() {
		return Outcome{}, stageError(ctx, result)
	}

	outcome := Outcome{Analysis: analysis}
	if chart, ok := findChart(sess.Dir); ok {
		outcome.ChartFile = chart
	} else {
		slog.WarnContext(ctx, "chart stage left no chart artifact, download disabled")
	}
	return outcome, nil
}

// findSpreadsheet returns the first .xlsx in dir whose name does not
// carry the chart marker.
func findSpreadsheet(dir string) (string, bool) {
	return findXLSX(dir, func(name string) bool {
		return !strings.Contains(name, model.ChartMarker)
	})
}

// findChart returns the first file in dir whose name carries the chart
// marker, whatever its extension.
func findChart(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.Contains(entry.Name(), model.ChartMarker) {
			return entry.Name(), true
		}
	}
	return "", false
}

func findXLSX(dir string, accept func(string) bool) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() &&
			strings.EqualFold(filepath.Ext(name), ".xlsx") &&
			accept(name) {
			return name, true
		}
	}
	return "", false
}

func stageError(ctx context.Context, result stage.Result) error {
	err := &model.StageError{
		Stage:    result.Stage,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr.String(),
		Err:      result.Err,
	}
	slog.ErrorContext(ctx, "stage failed",
		"stage", result.Stage,
		"command", result.Path,
		"args", result.Args,
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut(),
		"stderr", result.Stderr.String(),
		"stdout", result.Stdout.String(),
	)
	return err
}
