package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/gslauncher/internal/config"
	"github.com/loykin/gslauncher/internal/console"
	"github.com/loykin/gslauncher/internal/history/factory"
	"github.com/loykin/gslauncher/internal/metrics"
	"github.com/loykin/gslauncher/internal/server"
	"github.com/loykin/gslauncher/internal/store"
	"github.com/loykin/gslauncher/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the daemon until ctx is cancelled, then stops every server and
// shuts the API down.
func (c command) Serve(ctx context.Context, f ServeFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Daemonize {
		return daemonize(f.PidFile, f.LogFile)
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, currentPID()); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	lcfg := cfg.LoggerConfig()
	log, logCloser, err := lcfg.NewSlogger(c.errOut)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	consoleFiles := lcfg.NewConsoleFiles()
	defer func() { _ = consoleFiles.Close() }()

	baseEnv, err := cfg.BaseEnv()
	if err != nil {
		return err
	}
	sinks, err := factory.NewSinks(cfg.History.DSNs)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer func() { _ = sinks.Close() }()

	st, err := store.Open(cfg.ServersFile, log)
	if err != nil {
		return err
	}

	sup := supervisor.New(
		supervisor.WithLogger(log),
		supervisor.WithCrashLogDir(cfg.CrashLogDir),
		supervisor.WithHistory(sinks...),
		supervisor.WithStopDefaults(cfg.Stop.Command, cfg.Stop.Timeout),
		supervisor.WithKillSettle(cfg.Stop.KillSettle),
		supervisor.WithDrainTimeout(cfg.Stop.DrainTimeout),
		supervisor.WithBaseEnv(baseEnv),
	)

	hub := console.NewHub()
	opts := []server.Option{
		server.WithHub(hub),
		server.WithOutput(console.Tee(hub.Publish, consoleFiles.Write)),
		server.WithLogger(log),
		server.WithStopDefaults(cfg.Stop.Command, cfg.Stop.Timeout),
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", slog.Any("error", err))
		}
		rc := metrics.NewResourceCollector(cfg.Metrics.ResourceInterval, log)
		if err := rc.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register resource metrics", slog.Any("error", err))
		}
		rc.Start(ctx, sup.PIDs)
		defer rc.Stop()
		opts = append(opts, server.WithMetrics(cfg.Metrics.Path, metrics.Handler()), server.WithResources(rc))
	}

	router := server.NewRouter(sup, st, cfg.Server.BasePath, opts...)
	srv, err := server.NewServer(cfg.Server.Listen, router)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	log.Info("gslauncher serving",
		slog.String("listen", srv.Addr),
		slog.String("base_path", cfg.Server.BasePath),
		slog.String("servers_file", cfg.ServersFile),
		slog.Int("history_sinks", len(sinks)),
		slog.Bool("metrics", cfg.Metrics.Enabled))
	if f.onReady != nil {
		f.onReady(srv.Addr)
	}

	<-ctx.Done()
	log.Info("shutting down")

	var errs []error
	if err := sup.StopAll(cfg.Stop.Command, cfg.Stop.Timeout); err != nil {
		log.Error("some servers did not stop", slog.Any("error", err))
		errs = append(errs, err)
	}
	router.Wait()
	if err := sup.Close(); err != nil {
		errs = append(errs, err)
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		// open console streams keep Shutdown waiting
		_ = srv.Close()
	}
	return errors.Join(errs...)
}
