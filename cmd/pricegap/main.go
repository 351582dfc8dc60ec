// Package main is the entry point for the cross-chain price gap monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/pricegap-monitor/business/blockchain"
	blockchainDI "github.com/fd1az/pricegap-monitor/business/blockchain/di"
	blockchainDomain "github.com/fd1az/pricegap-monitor/business/blockchain/domain"
	"github.com/fd1az/pricegap-monitor/business/monitor"
	monitorApp "github.com/fd1az/pricegap-monitor/business/monitor/app"
	monitorDI "github.com/fd1az/pricegap-monitor/business/monitor/di"
	"github.com/fd1az/pricegap-monitor/business/monitor/infra/notify"
	"github.com/fd1az/pricegap-monitor/business/pricing"
	"github.com/fd1az/pricegap-monitor/internal/apm"
	"github.com/fd1az/pricegap-monitor/internal/config"
	"github.com/fd1az/pricegap-monitor/internal/health"
	"github.com/fd1az/pricegap-monitor/internal/logger"
	"github.com/fd1az/pricegap-monitor/internal/metrics"
	"github.com/fd1az/pricegap-monitor/internal/monolith"
	"github.com/fd1az/pricegap-monitor/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type options struct {
	configPath string
	tuiMode    bool
	demoMode   bool
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	demoMode := flag.Bool("demo", false, "Use synthetic prices instead of real sources (no network)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pricegap-monitor %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	opts := options{
		configPath: *configPath,
		tuiMode:    !*cliMode, // TUI is the default, CLI is for servers and debugging
		demoMode:   *demoMode,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !opts.tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.TUIMode = opts.tuiMode
	cfg.DemoMode = opts.demoMode

	// In TUI mode logs would tear the screen, so they are discarded
	var out io.Writer = os.Stderr
	if opts.tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting price gap monitor",
		"version", version,
		"environment", cfg.App.Environment,
		"demo", cfg.DemoMode,
	)

	stopTelemetry, err := setupTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	registry, err := pricing.NewChainRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to build chain registry: %w", err)
	}

	mono, err := monolith.New(cfg, log, registry)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Define modules in dependency order
	modules := []monolith.Module{
		&blockchain.Module{}, // RPC clients
		&pricing.Module{},    // sources, fallback and cache; needs blockchain
		&monitor.Module{},    // tasks, alerts and API; needs pricing
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	mon := monitorDI.GetMonitor(mono.Services())

	if cfg.HTTP.HealthPort > 0 {
		healthServer := newHealthServer(cfg, mono, mon, log)
		if err := healthServer.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "port", cfg.HTTP.HealthPort)
		}
		defer healthServer.Stop(context.Background())
	}

	if opts.tuiMode {
		return runTUI(ctx, cfg, mono, modules, mon)
	}
	return runCLI(ctx, mono, modules, log)
}

// setupTelemetry installs tracing and metrics when enabled and returns their shutdown.
func setupTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
	if err != nil {
		return nil, fmt.Errorf("telemetry headers: %w", err)
	}

	traceProvider, err := apm.NewTraceProvider(ctx, apm.Config{
		Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     headers,
		Writer:      os.Stderr,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	metricOpts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	// metrics follow traces to the collector when one is configured
	if apm.Provider(cfg.Telemetry.TraceProvider) == apm.OTLPGRPCProvider && cfg.Telemetry.OTLPEndpoint != "" {
		metricOpts = append(metricOpts, metrics.WithProviderConfig(metrics.NewOtelCollectorConfig(
			cfg.Telemetry.OTLPEndpoint, headers, strings.HasPrefix(cfg.Telemetry.OTLPEndpoint, "http://"),
		)))
	}

	meterProvider, err := metrics.NewMetricProvider(metricOpts...)
	if err != nil {
		_ = traceProvider.Stop()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	metricsServer := metrics.NewServer(meterProvider.Handler(), metrics.WithPort(strconv.Itoa(port)))
	metricsServer.Start(func(err error) {
		log.Error(context.Background(), "metrics server stopped", "port", port, "error", err)
	})
	log.Info(ctx, "prometheus metrics server started", "port", port)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Stop(shutdownCtx)
		_ = meterProvider.Shutdown(shutdownCtx)
		_ = traceProvider.Stop()
	}, nil
}

func newHealthServer(cfg *config.Config, mono monolith.Monolith, mon *monitorApp.Monitor, log logger.LoggerInterface) *health.Server {
	s := health.NewServer(cfg.HTTP.HealthPort, version, log)

	s.RegisterCheck("monitor", health.ErrorCheck(func(ctx context.Context) error {
		return mon.Liveness()
	}))

	if cfg.DemoMode {
		return s
	}

	svc := blockchainDI.GetBlockchainService(mono.Services())
	for _, chain := range svc.Chains() {
		s.RegisterCheck("rpc:"+chain, func(ctx context.Context) (bool, string) {
			block, err := svc.Ping(ctx, chain)
			if err != nil {
				return false, err.Error()
			}
			return true, fmt.Sprintf("block %d", block)
		})
	}
	return s
}

func runCLI(ctx context.Context, mono monolith.App, modules []monolith.Module, log logger.LoggerInterface) error {
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	log.Info(ctx, "all modules started, monitoring")

	<-ctx.Done()

	log.Info(ctx, "shutting down")
	return nil
}

// startup steps shown on the dashboard, one per module
var startupSteps = []string{"rpc", "sources", "tasks"}

func runTUI(ctx context.Context, cfg *config.Config, mono monolith.App, modules []monolith.Module, mon *monitorApp.Monitor) error {
	dashboard := ui.NewDashboard(ui.Options{Title: "Price Gap Monitor", Demo: cfg.DemoMode}, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon.AddObserver(notify.NewTUIObserver(ctx, dashboard))

	errCh := make(chan error, 1)
	go func() {
		// Wait for the welcome screen to complete
		select {
		case <-dashboard.Started():
		case <-ctx.Done():
			errCh <- nil
			return
		}

		dashboard.Send(ui.StartupMsg{Step: "config", Status: "done"})

		for i, mod := range modules {
			step := startupSteps[i]
			dashboard.Send(ui.StartupMsg{Step: step, Status: "connecting"})
			if err := mono.StartModules(ctx, mod); err != nil {
				dashboard.Send(ui.StartupMsg{Step: step, Status: "failed"})
				dashboard.Send(ui.ErrorMsg{Error: err})
				errCh <- err
				return
			}
			dashboard.Send(ui.StartupMsg{Step: step, Status: "done"})
		}

		refreshDashboard(ctx, cfg, mono, mon, dashboard)
		errCh <- nil
	}()

	// quit the program when a signal arrives; cancel also ends the goroutine
	// above once the user quits
	go func() {
		<-ctx.Done()
		dashboard.Quit()
	}()

	if err := dashboard.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// refreshDashboard pushes task snapshots and RPC status every second until ctx ends.
func refreshDashboard(ctx context.Context, cfg *config.Config, mono monolith.Monolith, mon *monitorApp.Monitor, dashboard *ui.Dashboard) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		dashboard.Send(ui.TasksMsg{Tasks: mon.Tasks()})

		if !cfg.DemoMode {
			for _, st := range blockchainDI.GetBlockchainService(mono.Services()).Status() {
				dashboard.Send(ui.ConnectionStatusMsg{
					Name:      st.Chain,
					Connected: st.State == blockchainDomain.StateConnected || st.State == blockchainDomain.StateDegraded,
				})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
