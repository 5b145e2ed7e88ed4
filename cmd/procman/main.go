package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	Format     string
	APIUrl     string
	Token      string
}

// StartFlags holds flags for the start command.
type StartFlags struct {
	Env     []string
	WorkDir string
	LogDir  string
}

// LogsFlags holds flags for the logs command.
type LogsFlags struct {
	Lines   int
	Rotated bool
	Rotate  bool
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	logsFlags := &LogsFlags{}
	serveFlags := &ServeFlags{}

	cmd := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(cmd, startFlags),
		createStopCommand(cmd),
		createRestartCommand(cmd),
		createDeleteCommand(cmd),
		createListCommand(cmd),
		createStatusCommand(cmd),
		createLogsCommand(cmd, logsFlags),
		createClearCommand(cmd),
		createServeCommand(globalFlags, serveFlags),
		createAuthCommand(cmd),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "procman",
		Short: "Process management and supervision tool",
		Long: `Procman starts, stops, and monitors long-running processes with
persistent state and per-process log capture.

Examples:
  procman start web python app.py
  procman status web
  procman logs web -n 50
  procman serve                     # Start the HTTP API daemon
  procman list --api-url=http://remote:8080/api --token=...`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.Format, "format", formatText, "output format: text or json")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	root.PersistentFlags().StringVar(&flags.Token, "token", "", "bearer token for the remote daemon")

	return root
}

func createStartCommand(cmd command, flags *StartFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "start <name> <command> [args...]",
		Short: "Start a new process",
		Long: `Start a new process under supervision. The command's stdout and
stderr are captured to a per-process log file.

Examples:
  procman start web python app.py
  procman start api --workdir=/srv/api -e PORT=9000 ./api-server --debug`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.Start(*flags, args[0], args[1], args[2:])
		},
	}
	c.Flags().StringArrayVarP(&flags.Env, "env", "e", nil, "environment variables (KEY=VALUE, repeatable)")
	c.Flags().StringVarP(&flags.WorkDir, "workdir", "w", "", "working directory")
	c.Flags().StringVar(&flags.LogDir, "log-dir", "", "log directory for this process (default from config)")
	return c
}

func createStopCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.Stop(args[0])
		},
	}
}

func createRestartCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.Restart(args[0])
		},
	}
}

func createDeleteCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a process and its log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.Delete(args[0])
		},
	}
}

func createListCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all processes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.List()
		},
	}
}

func createStatusCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show process status",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.Status(args[0])
		},
	}
}

func createLogsCommand(cmd command, flags *LogsFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show process logs",
		Long: `Show the captured log output of a process.

Examples:
  procman logs web                  # Full current log
  procman logs web -n 100           # Last 100 lines
  procman logs web --rotated        # List rotated log files
  procman logs web --rotate         # Rotate the log file now`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.Logs(*flags, args[0])
		},
	}
	c.Flags().IntVarP(&flags.Lines, "lines", "n", 0, "number of lines to show (default: all)")
	c.Flags().BoolVar(&flags.Rotated, "rotated", false, "list rotated log files")
	c.Flags().BoolVar(&flags.Rotate, "rotate", false, "rotate the log file now")
	return c
}

func createClearCommand(cmd command) *cobra.Command {
	var all bool
	c := &cobra.Command{
		Use:   "clear",
		Short: "Clear stopped/failed processes or all processes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Clear(all)
		},
	}
	c.Flags().BoolVar(&all, "all", false, "clear all processes regardless of status")
	return c
}

func createAuthCommand(cmd command) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage API authentication tokens",
	}
	auth.AddCommand(
		createAuthGenerateCommand(cmd),
		createAuthListCommand(cmd),
		createAuthRevokeCommand(cmd),
	)
	return auth
}

func createAuthGenerateCommand(cmd command) *cobra.Command {
	var expiresIn int
	c := &cobra.Command{
		Use:   "generate <name>",
		Short: "Generate a new API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.AuthGenerate(args[0], expiresIn)
		},
	}
	c.Flags().IntVar(&expiresIn, "expires-in", 0, "token expiration in days (0 = never)")
	return c
}

func createAuthListCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all API tokens",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.AuthList()
		},
	}
}

func createAuthRevokeCommand(cmd command) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmd.AuthRevoke(args[0])
		},
	}
}

func createServeCommand(globalFlags *GlobalFlags, flags *ServeFlags) *cobra.Command {
	var port int
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the procman HTTP API daemon",
		Long: `Start the daemon that serves the HTTP API, reconciles process
liveness, and reaps exited children.

Examples:
  procman serve                     # Listen address from config
  procman serve --port 9090         # Override the listen port
  procman serve --listen 0.0.0.0:8080`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			listen := flags.Listen
			if listen == "" && port != 0 {
				listen = "127.0.0.1:" + strconv.Itoa(port)
			}
			return runServe(globalFlags.ConfigPath, listen)
		},
	}
	c.Flags().StringVar(&flags.Listen, "listen", "", "listen address (overrides config)")
	c.Flags().IntVarP(&port, "port", "p", 0, "listen port on 127.0.0.1 (overrides config)")
	return c
}
