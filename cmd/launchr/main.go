package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(globalFlags),
		createStatusCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "launchr",
		Short: "On-demand launcher for a long-running application server",
		Long: `Launchr starts a configured application server (by default "streamlit run app.py")
when GET /start is called, keeps at most one instance running, and tells callers
when the application is ready.

Examples:
  launchr serve --config launchr.toml     # run the trigger endpoint
  launchr start                           # trigger and wait until ready
  launchr start --mode delay              # trigger and wait a fixed grace period
  launchr status --api-url http://host:5000`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the trigger endpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "override [server].listen")
	cmd.Flags().StringVar(&f.Command, "cmd", "", "override [process].command")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "override [process].work_dir")
	return cmd
}

func createStartCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Trigger the launch and wait until the application can be opened",
		Long: `Calls GET /start on the daemon and then waits before printing the target URL.

In poll mode (default) the daemon's /ready endpoint is polled until it succeeds or
the timeout elapses. In delay mode a fixed grace period is waited and readiness is
assumed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runStart(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	addAPIFlags(cmd, &f.APIUrl, &f.APITimeout, &f.CACert, &f.Insecure)
	cmd.Flags().StringVar(&f.Mode, "mode", "", "readiness mode: poll or delay (default from config)")
	cmd.Flags().DurationVar(&f.GracePeriod, "grace-period", 0, "delay mode wait (default from config)")
	cmd.Flags().DurationVar(&f.Interval, "interval", 0, "poll mode interval (default from config)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "poll mode timeout (default from config)")
	return cmd
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the managed process status",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runStatus(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	addAPIFlags(cmd, &f.APIUrl, &f.APITimeout, &f.CACert, &f.Insecure)
	return cmd
}

func addAPIFlags(cmd *cobra.Command, url *string, timeout *time.Duration, caCert *string, insecure *bool) {
	cmd.Flags().StringVar(url, "api-url", "", "daemon base URL (default derived from config)")
	cmd.Flags().DurationVar(timeout, "api-timeout", 0, "HTTP timeout per request")
	cmd.Flags().StringVar(caCert, "ca-cert", "", "CA certificate for an HTTPS daemon")
	cmd.Flags().BoolVar(insecure, "insecure", false, "skip TLS verification")
}
