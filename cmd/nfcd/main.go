// Command nfcd is the NFC daemon: it mediates between radio adapters and
// the D-Bus control plane, routing card-emulation traffic and aggregating
// power/mode state across every registered adapter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/nfcd/internal/adapter"
	"github.com/dantte-lp/nfcd/internal/config"
	"github.com/dantte-lp/nfcd/internal/dispatch"
	"github.com/dantte-lp/nfcd/internal/host"
	"github.com/dantte-lp/nfcd/internal/manager"
	nfcmetrics "github.com/dantte-lp/nfcd/internal/metrics"
	"github.com/dantte-lp/nfcd/internal/param"
	"github.com/dantte-lp/nfcd/internal/rpc"
	"github.com/dantte-lp/nfcd/internal/simdriver"
	appversion "github.com/dantte-lp/nfcd/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("nfcd starting",
		slog.String("version", appversion.Version),
		slog.String("dbus_bus", cfg.DBus.Bus),
		slog.String("dbus_name", cfg.DBus.Name),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := nfcmetrics.NewCollector(reg)

	mgr := manager.New(logger)

	if err := configureAdapters(cfg, mgr, collector, logger); err != nil {
		logger.Error("failed to configure adapters", slog.String("error", err.Error()))
		return 1
	}

	if err := runServers(cfg, mgr, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("nfcd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("nfcd stopped")
	return 0
}

// -------------------------------------------------------------------------
// Adapter construction
// -------------------------------------------------------------------------

// configureAdapters constructs one adapter per cfg.Adapters entry, seeds
// its persistent parameter overlay, wires its notifications into the
// metrics collector, and registers it with the manager. Concrete radio
// backends are out of scope (§1); the only compiled-in driver is the
// synchronous simdriver, which stands in for any hardware-backed driver a
// deployment would otherwise load through its plugin loader.
func configureAdapters(cfg *config.Config, mgr *manager.Manager, collector *nfcmetrics.Collector, logger *slog.Logger) error {
	for _, ac := range cfg.Adapters {
		drv, err := newDriver(ac.Driver)
		if err != nil {
			return fmt.Errorf("adapter %s: %w", ac.Name, err)
		}

		a := adapter.New(ac.Name, drv, logger)
		if sim, ok := drv.(*simdriver.Driver); ok {
			sim.Attach(a)
		}

		if err := seedParams(a, ac.Params); err != nil {
			return fmt.Errorf("adapter %s: seed params: %w", ac.Name, err)
		}

		wireMetrics(a, collector, logger)

		if err := mgr.AddAdapter(a); err != nil {
			return fmt.Errorf("register adapter %s: %w", ac.Name, err)
		}

		if cfg.Manager.AutoEnable {
			a.SetEnabled(true)
			a.RequestPower(true)
		}
	}

	var enableMask adapter.Mode
	for _, name := range cfg.Manager.EnableModes {
		enableMask |= adapter.Mode(config.ModeNames[name])
	}
	if enableMask != 0 {
		mgr.RequestMode(enableMask, 0)
	}

	return nil
}

func newDriver(name string) (adapter.Driver, error) {
	switch name {
	case "", "sim":
		return simdriver.New(adapter.TechA|adapter.TechB|adapter.TechF,
			adapter.ModeReaderWriter|adapter.ModeCardEmulation|adapter.ModePeerInitiator|adapter.ModePeerTarget), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}

func seedParams(a *adapter.Adapter, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}

	values := make(map[param.ID]param.Value, len(params))
	for name, raw := range params {
		id, err := param.ParseID(name)
		if err != nil {
			return err
		}
		values[id] = param.Value{Bool: raw == "true" || raw == "1" || raw == "on"}
	}

	_, err := a.Params.Submit(values, false)
	return err
}

// wireMetrics subscribes the collector to a's notifications so Prometheus
// state tracks the adapter's live power/presence/entity churn.
func wireMetrics(a *adapter.Adapter, collector *nfcmetrics.Collector, logger *slog.Logger) {
	a.Subscribe(func(signal adapter.Signal, detail string) {
		switch {
		case signal&adapter.SignalPowered != 0:
			collector.SetAdapterPowered(a.Name, a.Powered())
		case signal&adapter.SignalTargetPresence != 0:
			collector.SetAdapterTargetPresent(a.Name, a.TargetPresent())
		case signal&adapter.SignalTagAdded != 0:
			collector.IncEntityAdded(a.Name, "tag")
		case signal&adapter.SignalTagRemoved != 0:
			collector.IncEntityRemoved(a.Name, "tag")
		case signal&adapter.SignalPeerAdded != 0:
			collector.IncEntityAdded(a.Name, "peer")
		case signal&adapter.SignalPeerRemoved != 0:
			collector.IncEntityRemoved(a.Name, "peer")
		case signal&adapter.SignalHostAdded != 0:
			collector.IncEntityAdded(a.Name, "host")
		case signal&adapter.SignalHostRemoved != 0:
			collector.IncEntityRemoved(a.Name, "host")
		}
		logger.Debug("adapter signal", slog.String("adapter", a.Name),
			slog.String("signal", signal.String()), slog.String("detail", detail))
	})
}

// wireHostMetrics subscribes the collector to a card-emulation session's
// notifications, so every APDU the session routes to completion is
// counted by status word (§7). It is the host-session counterpart to
// wireMetrics and is called wherever a live encounter's *host.Host is
// constructed; simdriver does not yet simulate an initiator connecting in
// card-emulation mode, so no call site exists in this build's startup
// path, but a real target-mode driver wires its sessions through this.
func wireHostMetrics(adapterName string, h *host.Host, collector *nfcmetrics.Collector) {
	h.Subscribe(func(event host.Event, detail string) {
		if event != host.EventAPDURouted {
			return
		}
		sw, err := strconv.ParseUint(detail, 16, 16)
		if err != nil {
			return
		}
		collector.IncAPDURouted(adapterName, uint16(sw))
	})
}

// -------------------------------------------------------------------------
// Server run loop
// -------------------------------------------------------------------------

func runServers(cfg *config.Config, mgr *manager.Manager, reg *prometheus.Registry, logger *slog.Logger, configPath string, logLevel *slog.LevelVar) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	loop := dispatch.NewLoop()
	g.Go(func() error {
		loop.Run(gCtx)
		return nil
	})

	busSrv, err := rpc.Connect(cfg.DBus.Bus, cfg.DBus.Name, mgr, loop, logger)
	if err != nil {
		return fmt.Errorf("connect D-Bus: %w", err)
	}
	defer func() {
		if closeErr := busSrv.Close(); closeErr != nil {
			logger.Warn("failed to close D-Bus connection", slog.String("error", closeErr.Error()))
		}
	}()

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	loop.Do(func() { mgr.Start() })
	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, mgr, loop, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func startDaemonGoroutines(ctx context.Context, g *errgroup.Group, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				logger.Info("received SIGHUP, reloading log level")
				reloadLogLevel(configPath, logLevel, logger)
			}
		}
	})
}

func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// Systemd integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, mgr *manager.Manager, loop *dispatch.Loop, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	loop.Do(func() { mgr.Stop(0) })

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// HTTP / config / logging plumbing
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
