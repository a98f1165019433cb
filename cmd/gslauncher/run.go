package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/loykin/gslauncher/internal/config"
	"github.com/loykin/gslauncher/internal/logger"
	"github.com/loykin/gslauncher/internal/store"
	"github.com/loykin/gslauncher/internal/supervisor"
)

// Run supervises one configured server in the foreground. Console lines go to
// c.out, lines read from c.in are sent to the server and cancelling ctx stops
// it gracefully. A non-zero exit without a stop request is returned as an
// error.
func (c command) Run(ctx context.Context, f RunFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	serversFile := f.ServersFile
	if serversFile == "" {
		serversFile = cfg.ServersFile
	}
	log := slog.New(logger.NewColorTextHandler(c.errOut, &slog.HandlerOptions{Level: logger.ParseLevel(cfg.Log.Level)}))
	st, err := store.Open(serversFile, log)
	if err != nil {
		return err
	}
	rec, err := st.Get(f.ID)
	if err != nil {
		return err
	}
	baseEnv, err := cfg.BaseEnv()
	if err != nil {
		return err
	}

	sup := supervisor.New(
		supervisor.WithLogger(log),
		supervisor.WithCrashLogDir(cfg.CrashLogDir),
		supervisor.WithStopDefaults(cfg.Stop.Command, cfg.Stop.Timeout),
		supervisor.WithKillSettle(cfg.Stop.KillSettle),
		supervisor.WithDrainTimeout(cfg.Stop.DrainTimeout),
		supervisor.WithBaseEnv(baseEnv),
	)

	var outMu sync.Mutex
	emit := func(_ string, line string) {
		outMu.Lock()
		defer outMu.Unlock()
		_, _ = fmt.Fprintln(c.out, line)
	}
	if err := sup.Start(rec.Launch(emit)); err != nil {
		return err
	}
	done, _ := sup.Done(rec.ID)

	if c.in != nil {
		go forwardInput(c.in, func(line string) bool { return sup.SendCommand(rec.ID, line) })
	}

	select {
	case <-done:
	case <-ctx.Done():
		if !sup.Stop(rec.ID, cfg.Stop.Command, rec.StopTimeout(cfg.Stop.Timeout)) {
			_ = sup.Close()
			return fmt.Errorf("server %s: %w", rec.Name, supervisor.ErrStillRunning)
		}
	}
	// Close waits for the exit watcher so the marker line and crash log are
	// written before returning.
	_ = sup.Close()

	final, _ := sup.Status(rec.ID)
	if final.State == supervisor.StateCrashed && final.ExitCode != nil && *final.ExitCode != 0 {
		return fmt.Errorf("server %s exited with code %d", rec.Name, *final.ExitCode)
	}
	return nil
}

// forwardInput sends every line of r until r ends or send reports the server
// is gone.
func forwardInput(r io.Reader, send func(line string) bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if !send(sc.Text()) {
			return
		}
	}
}
