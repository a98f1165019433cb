package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot(command{out: os.Stdout, errOut: os.Stderr, in: os.Stdin})
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// command carries the streams the CLI reads from and writes to so the
// handlers can be exercised in tests.
type command struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader
}

func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.AddCommand(
		createServeCommand(c, globalFlags),
		createServersCommand(c, globalFlags),
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createSendCommand(c),
		createConsoleCommand(c),
		createStatusCommand(c),
		createRunCommand(c, globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gslauncher",
		Short: "Game server launcher and supervisor",
		Long: `gslauncher starts, stops and watches game server processes, captures
their console output and writes a crash log when a server exits unexpectedly.

Examples:
  gslauncher serve gslauncher.toml        # Start the daemon
  gslauncher servers add --name=survival --script=/srv/mc/run.sh
  gslauncher start --id=<id>
  gslauncher send --id=<id> say hello
  gslauncher run --id=<id>                # Run one server in the foreground`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (TOML, YAML or JSON; optional)")
	return root
}

func createServeCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config]",
		Short: "Start the gslauncher daemon",
		Long: `Start the daemon serving the HTTP API. Configuration is read from the
given file (or --config) and GSL_* environment variables.

Examples:
  gslauncher serve
  gslauncher serve /etc/gslauncher/config.toml
  gslauncher serve --daemonize --pidfile=/run/gslauncher.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return c.Serve(cmd.Context(), *serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")
	return cmd
}

func createServersCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	storeFlags := &StoreFlags{}
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage configured servers",
		Long: `Edit the server list file directly. Changes are picked up by the daemon
on the next request.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			storeFlags.ConfigPath = globalFlags.ConfigPath
		},
	}
	cmd.PersistentFlags().StringVar(&storeFlags.ServersFile, "servers-file", "", "server list file (default from config)")
	cmd.AddCommand(
		createServersListCommand(c, storeFlags),
		createServersAddCommand(c, storeFlags),
		createServersEditCommand(c, storeFlags),
		createServersRemoveCommand(c, storeFlags),
	)
	return cmd
}

func createServersListCommand(c command, storeFlags *StoreFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ServersList(*storeFlags, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json|yaml")
	return cmd
}

func addServerFlags(cmd *cobra.Command, f *ServerFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "display name")
	cmd.Flags().StringVar(&f.Script, "script", "", "launch script path")
	cmd.Flags().StringVar(&f.WorkDir, "cwd", "", "working directory (default: script directory)")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "environment override KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&f.ForceKill, "force-kill", false, "kill immediately on stop instead of waiting")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "json", "output format: json|yaml")
}

func createServersAddCommand(c command, storeFlags *StoreFlags) *cobra.Command {
	f := &ServerFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a server",
		Long: `Add a server to the server list.

Examples:
  gslauncher servers add --name=survival --script=/srv/mc/run.sh
  gslauncher servers add --name=test --script=./start.sh --env=JAVA_OPTS=-Xmx2G --force-kill`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ServersAdd(*storeFlags, *f)
		},
	}
	addServerFlags(cmd, f)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("script"); err != nil {
		panic(err)
	}
	return cmd
}

func createServersEditCommand(c command, storeFlags *StoreFlags) *cobra.Command {
	f := &ServerFlags{}
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a server",
		Long: `Change the given fields of a server; omitted flags keep their value.

Examples:
  gslauncher servers edit --id=<id> --name=renamed
  gslauncher servers edit --id=<id> --force-kill=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.changed = func(name string) bool { return cmd.Flags().Changed(name) }
			return c.ServersEdit(*storeFlags, *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	addServerFlags(cmd, f)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createServersRemoveCommand(c command, storeFlags *StoreFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ServersRemove(*storeFlags, id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "server id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8000/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 30*time.Second, "request timeout")
}

func requireID(cmd *cobra.Command) {
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err) // This should never happen during setup
	}
}

func createStartCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a server via the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	addAPIFlags(cmd, f)
	requireID(cmd)
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	f := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a server via the daemon",
		Long: `Write the stop command to the server's console, wait for it to exit and
kill it when the grace period runs out.

Examples:
  gslauncher stop --id=<id>
  gslauncher stop --id=<id> --command=quit --timeout=30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	cmd.Flags().StringVar(&f.Command, "command", "", "graceful stop command (default from daemon config)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "grace period before kill (default from daemon config)")
	addAPIFlags(cmd, &f.APIFlags)
	requireID(cmd)
	return cmd
}

func createRestartCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a server via the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	addAPIFlags(cmd, f)
	requireID(cmd)
	return cmd
}

func createSendCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "send --id=<id> <text...>",
		Short: "Send a console command to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Send(cmd.Context(), *f, args)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	addAPIFlags(cmd, f)
	requireID(cmd)
	return cmd
}

func createConsoleCommand(c command) *cobra.Command {
	f := &ConsoleFlags{}
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Print a server's console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Console(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep streaming new lines")
	addAPIFlags(cmd, &f.APIFlags)
	requireID(cmd)
	return cmd
}

func createStatusCommand(c command) *cobra.Command {
	f := &APIFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long: `Show the status of one server, or of every configured server when --id
is omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *f, output)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (optional)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json|yaml")
	addAPIFlags(cmd, f)
	return cmd
}

func createRunCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one configured server in the foreground",
		Long: `Start a configured server in this process, print its console and
forward terminal lines to its stdin. Ctrl-C stops it gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.Run(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "server id (required)")
	cmd.Flags().StringVar(&f.ServersFile, "servers-file", "", "server list file (default from config)")
	requireID(cmd)
	return cmd
}
