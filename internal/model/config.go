package model

import (
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	// ChartMarker is the substring the chart stage puts into the name of
	// the spreadsheet it produces. Artifact discovery keys on it.
	ChartMarker = "_with_chart"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version"` // fixed 0 for now
	Server   Server   `json:"server"`
	Pipeline Pipeline `json:"pipeline"`
	Storage  Storage  `json:"storage"`
	Service  Service  `json:"service"`
}

// Server holds the HTTP surface settings.
type Server struct {
	Listen         string `json:"listen"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	MaxConcurrent  int64  `json:"max_concurrent"`
}

// Pipeline names the three collaborator scripts and how to run them.
type Pipeline struct {
	ScriptsDir   string  `json:"scripts_dir"`
	Converter    string  `json:"converter"`
	Analyzer     string  `json:"analyzer"`
	Chart        string  `json:"chart"`
	Python       *string `json:"python,omitempty"` // explicit interpreter, skips probing
	StageTimeout string  `json:"stage_timeout"`    // ISO8601, e.g. PT10M
}

// StageTimeoutDuration returns the parsed per-stage execution limit.
func (p Pipeline) StageTimeoutDuration() (time.Duration, error) {
	return ParseISODuration(p.StageTimeout)
}

// Storage holds the intake and outputs areas plus session retention.
type Storage struct {
	IntakeDir  string        `json:"intake_dir"`
	OutputsDir string        `json:"outputs_dir"`
	Retention  string        `json:"retention"` // ISO8601, e.g. P1D
	Schedule   *ReapSchedule `json:"schedule,omitempty"`
}

// RetentionWindow returns the parsed session retention window.
func (s Storage) RetentionWindow() (time.Duration, error) {
	return ParseISODuration(s.Retention)
}

// ReapSchedule configures when the session reaper fires. Cron wins over
// Duration when both are set; with neither set the reaper runs hourly.
type ReapSchedule struct {
	Cron     string `json:"cron,omitempty"`
	Duration string `json:"duration,omitempty"` // ISO8601
}

type Service struct {
	Verbose bool    `json:"verbose"`
	Log     *string `json:"log,omitempty"` // "stderr"|"stdout"|"discard"
}

// DefaultConfig returns the configuration written on first run. Values
// mirror the defaults in config.cue.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Server: Server{
			Listen:         ":8080",
			MaxUploadBytes: 100 << 20,
			MaxConcurrent:  4,
		},
		Pipeline: Pipeline{
			ScriptsDir:   "scripts",
			Converter:    "windaq_to_excel_converter.py",
			Analyzer:     "pulse_analyzer.py",
			Chart:        "add_chart_to_excel.py",
			StageTimeout: "PT10M",
		},
		Storage: Storage{
			IntakeDir:  "uploads",
			OutputsDir: "outputs",
			Retention:  "P1D",
		},
		Service: Service{},
	}
}

// LoadConfig validates YAML from r against the CUE schema and decodes it.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("pulseweb.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
