package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"tern/internal/build"
	"tern/internal/config"
	"tern/internal/logfields"
	"tern/internal/logging"
	"tern/internal/metrics"
	"tern/internal/vcs"
	"tern/internal/version"
	"tern/internal/watch"
)

var CLI struct {
	Site      string `short:"s" help:"Site root directory." default:"."`
	Config    string `short:"c" help:"Site configuration file (defaults to <site>/site.yaml)." type:"existingfile"`
	Verbose   bool   `short:"v" help:"Enable debug logging."`
	Quiet     bool   `short:"q" help:"Only log errors."`
	LogFormat string `help:"Log format (text or json)."`

	Build struct {
		Output   string `short:"o" help:"Output directory (overrides site.yaml)."`
		Workers  int    `short:"w" help:"Render worker count (0 = one per CPU)."`
		FailFast bool   `help:"Abort on the first node failure."`
		Drafts   bool   `short:"D" help:"Include draft pages."`
	} `cmd:"" help:"Build the site once."`

	Watch struct {
		Output      string `short:"o" help:"Output directory (overrides site.yaml)."`
		Workers     int    `short:"w" help:"Render worker count (0 = one per CPU)."`
		Drafts      bool   `short:"D" help:"Include draft pages."`
		MetricsAddr string `help:"Expose Prometheus metrics on this address."`
	} `cmd:"" help:"Rebuild continuously on filesystem changes."`

	Check struct{} `cmd:"" help:"Validate the site without writing artifacts."`

	Version struct{} `cmd:"" help:"Print the version."`
}

func main() {
	k := kong.Parse(&CLI,
		kong.Name("tern"),
		kong.Description("tern builds static sites from markdown content trees."),
		kong.UsageOnError(),
	)

	var err error
	switch k.Command() {
	case "build":
		err = runBuild()
	case "watch":
		err = runWatch()
	case "check":
		err = runCheck()
	case "version":
		fmt.Printf("tern %s\n", version.Version)
	default:
		err = fmt.Errorf("unknown command %q", k.Command())
	}
	if err != nil {
		slog.Error("command failed", logfields.Error(err))
		os.Exit(1)
	}
}

func runBuild() error {
	cfg, err := loadConfig(CLI.Build.Output, CLI.Build.Workers, CLI.Build.FailFast, CLI.Build.Drafts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	builder, err := newBuilder(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer builder.Close()

	report, err := builder.Build(ctx, uuid.NewString())
	fmt.Println(report.Summary())
	return err
}

func runCheck() error {
	cfg, err := loadConfig("", 0, false, false)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	builder, err := newBuilder(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer builder.Close()

	report, err := builder.Check(ctx, uuid.NewString())
	fmt.Print(report.Text())
	return err
}

func runWatch() error {
	cfg, err := loadConfig(CLI.Watch.Output, CLI.Watch.Workers, false, CLI.Watch.Drafts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec, stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	builder, err := newBuilder(cfg, rec)
	if err != nil {
		return err
	}
	defer func() { _ = builder.Close() }()

	if _, err := builder.Build(ctx, uuid.NewString()); err != nil {
		// Watch mode keeps going; the report already names the failures.
		slog.Warn("initial build failed", logfields.Error(err))
	}

	rebuild := func(ctx context.Context, changed []string) error {
		if containsConfig(changed) {
			newCfg, cerr := loadConfig(CLI.Watch.Output, CLI.Watch.Workers, false, CLI.Watch.Drafts)
			if cerr != nil {
				return fmt.Errorf("reload config: %w", cerr)
			}
			nb, berr := newBuilder(newCfg, rec)
			if berr != nil {
				return fmt.Errorf("rebuild pipeline: %w", berr)
			}
			_ = builder.Close()
			builder, cfg = nb, newCfg
		}
		_, berr := builder.Build(ctx, uuid.NewString())
		return berr
	}

	w, err := watch.New(watch.Options{
		SiteDir:          cfg.SiteDir,
		Debounce:         cfg.Watch.Debounce.Std(),
		FullRebuildEvery: cfg.Watch.FullRebuildEvery.Std(),
		Logger:           slog.Default(),
		Rebuild:          rebuild,
		Ignore:           ignoreDirs(cfg),
	})
	if err != nil {
		return err
	}
	slog.Info("watching for changes", logfields.Path(cfg.SiteDir))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig reads site.yaml, applies CLI overrides and installs the
// logger it implies.
func loadConfig(output string, workers int, failFast, drafts bool) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if CLI.Config != "" {
		cfg, err = config.LoadFile(CLI.Site, CLI.Config)
	} else {
		cfg, err = config.Load(CLI.Site)
	}
	if err != nil {
		return nil, err
	}
	if output != "" {
		cfg.Output = output
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if failFast {
		cfg.FailFast = true
	}
	if drafts {
		cfg.Drafts = true
	}

	level := cfg.Log.Level
	if CLI.Verbose {
		level = "debug"
	}
	if CLI.Quiet {
		level = "error"
	}
	format := cfg.Log.Format
	if CLI.LogFormat != "" {
		format = CLI.LogFormat
	}
	if _, err := logging.Setup(logging.Options{Level: level, Format: format}); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		slog.Warn("config: " + w)
	}
	return cfg, nil
}

func newBuilder(cfg *config.Config, rec metrics.Recorder) (*build.Builder, error) {
	info, _ := vcs.Detect(cfg.SiteDir)
	return build.NewBuilder(build.Options{
		Config:   cfg,
		Logger:   slog.Default(),
		Metrics:  rec,
		Revision: info.Revision,
		Dirty:    info.Dirty,
	})
}

// startMetrics serves a Prometheus endpoint when watch.metrics_addr or
// --metrics-addr is set; otherwise recording is a no-op.
func startMetrics(cfg *config.Config) (metrics.Recorder, func()) {
	addr := cfg.Watch.MetricsAddr
	if CLI.Watch.MetricsAddr != "" {
		addr = CLI.Watch.MetricsAddr
	}
	if addr == "" {
		return metrics.NoopRecorder{}, func() {}
	}

	reg := prom.NewRegistry()
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.HTTPHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", logfields.Error(err))
		}
	}()
	slog.Info("metrics listening", slog.String("addr", addr))
	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return metrics.NewPrometheusRecorder(reg), stop
}

func containsConfig(changed []string) bool {
	for _, p := range changed {
		if p == config.FileName {
			return true
		}
	}
	return false
}

// ignoreDirs lists top-level directories the watcher must not react to.
func ignoreDirs(cfg *config.Config) []string {
	rel, err := filepath.Rel(cfg.SiteDir, cfg.OutputDir())
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return nil
	}
	return []string{rel}
}
