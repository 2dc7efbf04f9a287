// vmstatsd collects process statistics into tiered history and persists
// them to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/collector"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/loader"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage"
	"github.com/xtxerr/vmstats/internal/sysinfo"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("vmstatsd")

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	cfgPath := flag.String("config", "vmstats.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "storage directory (overrides config)")
	interval := flag.Duration("interval", 0, "collection interval (overrides config)")
	listen := flag.String("metrics-listen", "", "Prometheus listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	requirements := flag.Bool("requirements", false, "print resource requirements and exit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("vmstatsd", Version)
		return errors.ExitOK
	}

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return errors.ExitUsage
		}
		cfg = loader.DefaultConfig()
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.Storage.Dir = *dataDir
	}
	if *interval > 0 {
		cfg.Collector.Interval = *interval
	}
	if *listen != "" {
		cfg.Metrics.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return errors.ExitCode(err)
	}

	logging.Init(loader.LogLevel(cfg), cfg.Logging.Format == "json")
	log.Info("vmstatsd starting", "version", Version, "config", *cfgPath)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("set GOMAXPROCS", "error", err)
	}

	// =========================================================================
	// Registry
	// =========================================================================

	defs := sysinfo.DefaultStatistics()
	reg, err := loader.BuildRegistry(cfg, defs)
	if err != nil {
		log.Error("build registry", "error", err)
		return errors.ExitCode(err)
	}

	layouts, err := loader.Layouts(cfg, defs)
	if err != nil {
		log.Error("tier layouts", "error", err)
		return errors.ExitCode(err)
	}
	req := cfg.Storage.CalculateRequirements(layouts)
	if *requirements {
		fmt.Print(req.FormatRequirements())
		return errors.ExitOK
	}
	log.Info("resource estimate",
		"metrics", req.Metrics,
		"tiers", req.Tiers,
		"ram_bytes", req.TotalRAMBytes,
		"storage_bytes", req.TotalStorageBytes)

	// =========================================================================
	// Storage
	// =========================================================================

	clk := clock.New()

	store, err := storage.New(&cfg.Storage, reg, clk)
	if err != nil {
		log.Error("open storage", "error", err)
		return errors.ExitCode(err)
	}
	for _, m := range reg.All() {
		store.Declare(m.Name, m.Tiers())
	}

	// =========================================================================
	// Collector
	// =========================================================================

	var (
		promReg *prometheus.Registry
		metrics *collector.Metrics
	)
	if cfg.Metrics.Listen != "" {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = collector.NewMetrics(promReg)
	}

	coll, err := collector.New(&cfg.Collector, reg, sysinfo.NewSampler(clk), store, clk, metrics)
	if err != nil {
		log.Error("create collector", "error", err)
		return errors.ExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replay persisted history before the first tick
	logs, err := store.LoadAll(ctx)
	if err != nil {
		log.Error("load history", "error", err)
		return errors.ExitCode(err)
	}

	// Rollups completed by the replay are written, so storage runs first
	if err := store.Start(); err != nil {
		log.Error("start storage", "error", err)
		return errors.ExitCode(err)
	}
	if err := coll.Restore(logs); err != nil {
		log.Warn("restore history", "error", err)
	}
	if err := coll.Start(ctx); err != nil {
		log.Error("start collector", "error", err)
		return errors.ExitCode(err)
	}

	var srv *http.Server
	if promReg != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}))
		srv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: config.DefaultMetricsReadTimeout,
		}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics endpoint", "error", err)
			}
		}()
	}

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop collecting first so no new records reach the store
	if err := coll.Stop(shutdownCtx); err != nil && !errors.Is(err, errors.ErrCollectorStopped) {
		log.Warn("collector stop", "error", err)
	}

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics endpoint shutdown", "error", err)
		}
	}

	// Flush and close storage last
	if err := store.Stop(shutdownCtx); err != nil {
		log.Error("storage stop", "error", err)
		return errors.ExitStorage
	}

	stats := coll.Stats()
	log.Info("vmstatsd stopped",
		"ticks", stats.Ticks,
		"samples", stats.Samples,
		"provider_errors", stats.ProviderErrors)
	return errors.ExitOK
}
