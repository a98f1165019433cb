package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loykin/gslauncher/pkg/client"
)

const defaultAPIUrl = "http://127.0.0.1:8000/api"

// apiClient returns a client for the daemon, failing early when it is down.
func (c command) apiClient(ctx context.Context, f APIFlags) (*client.Client, error) {
	apiUrl := f.APIUrl
	if apiUrl == "" {
		apiUrl = defaultAPIUrl
	}
	cl := client.New(client.Config{
		BaseURL: apiUrl,
		Timeout: f.APITimeout,
		Logger:  slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'gslauncher serve'", apiUrl)
	}
	return cl, nil
}

func (c command) Start(ctx context.Context, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	srv, err := cl.Start(ctx, f.ID)
	if err != nil {
		return err
	}
	return printOutput(c.out, "json", srv.Status)
}

func (c command) Stop(ctx context.Context, f StopFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	stopped, err := cl.Stop(ctx, f.ID, client.StopOptions{Command: f.Command, Timeout: f.Timeout})
	if err != nil {
		return err
	}
	if !stopped {
		return fmt.Errorf("server %s could not be confirmed stopped", f.ID)
	}
	_, err = fmt.Fprintf(c.out, "Stopped server %s\n", f.ID)
	return err
}

func (c command) Restart(ctx context.Context, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	if err := cl.Restart(ctx, f.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "Restart of server %s requested\n", f.ID)
	return err
}

func (c command) Send(ctx context.Context, f APIFlags, args []string) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	ok, err := cl.SendCommand(ctx, f.ID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to send command (server %s not running?)", f.ID)
	}
	return nil
}

func (c command) Console(ctx context.Context, f ConsoleFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if f.Follow {
		return cl.Stream(ctx, f.ID, func(line string) {
			_, _ = fmt.Fprintln(c.out, line)
		})
	}
	text, err := cl.Console(ctx, f.ID)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	_, err = fmt.Fprintln(c.out, text)
	return err
}

func (c command) Status(ctx context.Context, f APIFlags, output string) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	if f.ID == "" {
		servers, err := cl.List(ctx)
		if err != nil {
			return err
		}
		return printOutput(c.out, output, servers)
	}
	st, err := cl.Status(ctx, f.ID)
	if err != nil {
		return err
	}
	return printOutput(c.out, output, st)
}
