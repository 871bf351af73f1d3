// Package main is the entry point for the multi-chain wallet daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/chain-wallet/business/connection"
	connectionDI "github.com/fd1az/chain-wallet/business/connection/di"
	conndomain "github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/business/subscription"
	subscriptionDI "github.com/fd1az/chain-wallet/business/subscription/di"
	"github.com/fd1az/chain-wallet/internal/apm"
	"github.com/fd1az/chain-wallet/internal/config"
	"github.com/fd1az/chain-wallet/internal/health"
	"github.com/fd1az/chain-wallet/internal/logger"
	"github.com/fd1az/chain-wallet/internal/metrics"
	"github.com/fd1az/chain-wallet/internal/monolith"
	"github.com/fd1az/chain-wallet/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type options struct {
	configPath string
	watches    watchFlags
	status     bool
	wait       time.Duration
	refresh    time.Duration
	tui        bool
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.Var(&opts.watches, "watch", "Watch balances: chain=addr1,addr2 (repeatable)")
	flag.BoolVar(&opts.status, "status", false, "Print chain status once every chain settles, then exit")
	flag.DurationVar(&opts.wait, "wait", 15*time.Second, "How long -status waits for chains to settle")
	flag.DurationVar(&opts.refresh, "refresh", 0, "Print the status panel at this interval (0 disables)")
	flag.BoolVar(&opts.tui, "tui", false, "Run the interactive dashboard")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("walletd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	code, err := run(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(ctx context.Context, opts options) (int, error) {
	// Load configuration
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return 1, fmt.Errorf("failed to load config: %w", err)
	}

	// The dashboard owns the terminal.
	var logOut io.Writer = os.Stderr
	if opts.tui {
		logOut = io.Discard
	}
	log := logger.New(logOut, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting wallet daemon",
		"version", version,
		"environment", cfg.App.Environment,
		"chains", cfg.EnabledChainIDs(),
	)

	stopTelemetry, err := startTelemetry(ctx, cfg, log)
	if err != nil {
		return 1, err
	}
	defer stopTelemetry()

	// Create monolith (application container)
	mono := monolith.New(cfg, log)

	// Define modules in dependency order
	modules := []monolith.Module{
		&connection.Module{},   // Must be first - owns every chain connection
		&subscription.Module{}, // Batches over ready connections
	}

	// Register all module services
	if err := mono.RegisterModules(modules...); err != nil {
		return 1, fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return 1, fmt.Errorf("failed to start modules: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mono.Close(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "shutdown", "error", err)
		}
	}()

	reg := connectionDI.GetRegistry(mono.Services())
	mux := subscriptionDI.GetMultiplexer(mono.Services())
	view := newStatusView()

	if opts.status {
		settled := awaitSettled(ctx, reg, opts.wait)
		view.refresh(reg)
		fmt.Println(view.render())
		if !settled || !allReady(reg) {
			return 2, nil
		}
		return 0, nil
	}

	if cfg.Health.Enabled {
		healthServer := health.NewServer(cfg.Health.Port, version, log)
		for _, id := range reg.Chains() {
			conn, err := reg.Get(id)
			if err != nil {
				return 1, err
			}
			healthServer.RegisterCheck("chain:"+id, func(context.Context) (bool, string) {
				return conn.Availability() == conndomain.AvailabilityReady, conn.State().String()
			})
		}
		if err := healthServer.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "port", cfg.Health.Port)
			defer healthServer.Stop(context.Background())
		}
	}

	for _, target := range mergeWatches(opts.watches) {
		w := &watcher{target: target, reg: reg, mux: mux, view: view, log: log}
		go w.run(ctx)
	}

	if opts.tui {
		dashboard := tea.NewProgram(
			ui.New(func() ui.Snapshot { return view.snapshot(reg) }, opts.refresh),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)
		if _, err := dashboard.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return 1, fmt.Errorf("dashboard: %w", err)
		}
		log.Info(ctx, "shutting down")
		return 0, nil
	}

	if opts.refresh > 0 {
		go func() {
			ticker := time.NewTicker(opts.refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					view.refresh(reg)
					fmt.Println(view.render())
				}
			}
		}()
	}

	// Wait for shutdown
	<-ctx.Done()
	log.Info(ctx, "shutting down")
	return 0, nil
}

// startTelemetry initializes tracing and metrics when enabled and returns
// the matching shutdown.
func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	traceProvider, err := apm.NewTraceProvider(ctx, log, apm.Config{
		Provider:    apm.Provider(cfg.Telemetry.Provider),
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     cfg.Telemetry.OTLPHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	metricProvider, err := metrics.NewMetricProvider(
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{
			Provider: metrics.PrometheusProvider,
		}),
	)
	if err != nil {
		traceProvider.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	promServer, err := metrics.ServePrometheusMetrics(log, metrics.WithPort(strconv.Itoa(port)))
	if err != nil {
		log.Warn(ctx, "failed to start prometheus server", "error", err)
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if promServer != nil {
			promServer.Stop(stopCtx)
		}
		metricProvider.Shutdown(stopCtx)
		traceProvider.Stop()
	}, nil
}

// mergeWatches folds repeated flags for one chain into one target, keeping
// first-seen order.
func mergeWatches(in watchFlags) []watchTarget {
	var out []watchTarget
	index := map[string]int{}
	for _, s := range in {
		if i, ok := index[s.chainID]; ok {
			out[i].keys = append(out[i].keys, s.keys...)
			continue
		}
		index[s.chainID] = len(out)
		out = append(out, watchTarget{chainID: s.chainID, keys: append([]string(nil), s.keys...)})
	}
	return out
}
