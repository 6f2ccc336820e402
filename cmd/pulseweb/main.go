package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/dataq-tools/pulseweb/internal/log"
	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/dataq-tools/pulseweb/internal/pipeline"
	"github.com/dataq-tools/pulseweb/internal/session"
	"github.com/dataq-tools/pulseweb/internal/stage"
	"github.com/dataq-tools/pulseweb/internal/web"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/pulseweb on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "pulseweb")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is pulseweb.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initPulseweb

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("pulseweb failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pulseweb",
	Short:        "Web service analyzing current pulses in WinDaq recordings",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs the upload/analyze/download HTTP service",
	RunE:  doServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.wdq>",
	Short: "analyze runs the conversion pipeline over one local file and prints the result",
	Args:  cobra.ExactArgs(1),
	RunE:  doAnalyze,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of pulseweb",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("pulseweb: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("pulseweb: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("pulseweb",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	orchestrator, store, err := buildPipeline()
	if err != nil {
		return err
	}

	retention, err := config.Storage.RetentionWindow()
	if err != nil {
		return fmt.Errorf("parsing storage.retention: %w", err)
	}

	handler, err := web.NewHandler(web.Config{
		MaxUploadBytes: config.Server.MaxUploadBytes,
		IntakeDir:      config.Storage.IntakeDir,
	}, store, orchestrator)
	if err != nil {
		return err
	}

	reaper, err := session.NewReaper(store, retention, config.Storage.Schedule)
	if err != nil {
		return err
	}
	reaper.Start()
	defer func() {
		if err := reaper.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down reaper has failed", "error", err)
		}
	}()

	return web.NewServer(config.Server.Listen, handler).Run(ctx)
}

func doAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("pulseweb",
		slog.String("cmd", "analyze"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	orchestrator, store, err := buildPipeline()
	if err != nil {
		return err
	}

	sess, err := store.Create(ctx, args[0], filepath.Base(args[0]))
	if err != nil {
		return err
	}

	outcome, err := orchestrator.Process(ctx, sess)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome.Analysis); err != nil {
		return fmt.Errorf("formatting analysis as JSON: %w", err)
	}
	if outcome.ChartFile != "" {
		fmt.Fprintf(os.Stderr, "chart: %s\n", filepath.Join(sess.Dir, outcome.ChartFile))
	}
	return nil
}

func buildPipeline() (*pipeline.Orchestrator, *session.Store, error) {
	store, err := session.NewStore(config.Storage.OutputsDir)
	if err != nil {
		return nil, nil, err
	}

	timeout, err := config.Pipeline.StageTimeoutDuration()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing pipeline.stage_timeout: %w", err)
	}

	runner := stage.NewRunner(stage.NewInterpreter(get(config.Pipeline.Python)))
	orchestrator := pipeline.New(runner, pipeline.Config{
		ScriptsDir:    config.Pipeline.ScriptsDir,
		Converter:     config.Pipeline.Converter,
		Analyzer:      config.Pipeline.Analyzer,
		Chart:         config.Pipeline.Chart,
		StageTimeout:  timeout,
		MaxConcurrent: config.Server.MaxConcurrent,
	})
	return orchestrator, store, nil
}

func initPulseweb(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("PULSEWEBCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "pulseweb.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "pulseweb.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d)
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	slog.SetDefault(log.New(config.Service.Verbose))

	slog.Debug("pulseweb run", "configPath", configPath)
	slog.Debug("pulseweb run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func get[T any](pt *T) T {
	var zero T
	if pt == nil {
		return zero
	}
	return *pt
}
