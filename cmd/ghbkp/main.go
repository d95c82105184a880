// Package main is the entry point for the ghbkp CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/ghbkp/internal/config"
	"github.com/flemzord/ghbkp/internal/daemon"
	"github.com/flemzord/ghbkp/internal/security"
	"github.com/flemzord/ghbkp/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ghbkp:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ghbkp",
		Short:         "Daily backups of GitHub repositories and notification service data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), runCmd(), configCmd(), serviceCmd())
	return root
}

func runParams() app.RunParams {
	return app.RunParams{Version: version, Commit: commit, Date: date}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ghbkp %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the backup loop in the foreground",
		Long: "Run the backup loop until interrupted. Configuration is read from the " +
			"environment. When launched by a service manager the loop is driven by it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if service.Interactive() {
				return app.Run(cmd.Context(), runParams())
			}
			return runAsService()
		},
	}
}

// runAsService hands control to the host service manager. A loop that ends
// on its own terminates the process so the manager restarts it; after a
// requested stop the loop's own result becomes the exit status.
func runAsService() error {
	logger := slog.New(security.NewRedactingHandler(slog.NewTextHandler(os.Stderr, nil), security.NewRedactor()))
	prg := daemon.NewProgram(func(ctx context.Context) error {
		return app.Run(ctx, runParams())
	}, logger)
	prg.OnExit = func(err error) {
		if err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	s, err := daemon.New(prg, daemon.Config(nil))
	if err != nil {
		return err
	}
	if err := s.Run(); err != nil {
		return err
	}
	return prg.Err()
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Validate the configuration from the environment",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := app.LoadConfig(nil)
				if err != nil {
					return err
				}
				if err := config.Validate(cfg); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets redacted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return showConfig(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "vars",
			Short: "List the environment variables the configuration reads",
			RunE: func(cmd *cobra.Command, _ []string) error {
				keys, err := config.Keys()
				if err != nil {
					return err
				}
				for _, k := range keys {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
	)
	return cmd
}

func showConfig(w io.Writer) error {
	cfg, err := app.LoadConfig(nil)
	if err != nil {
		return err
	}
	creds := security.NewCredentialStore()
	cfg.Credentials(creds)
	redactor := security.NewRedactor()
	redactor.Watch(creds)

	out, err := cfg.Dump(redactor)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func serviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "service <action>",
		Short:     "Install or control the system service",
		Long:      "Install, uninstall, start, stop, or restart ghbkp as a system service. Install captures the current configuration variables.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.ControlAction[:],
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.Environ()
			if err != nil {
				return err
			}
			prg := daemon.NewProgram(func(ctx context.Context) error {
				return app.Run(ctx, runParams())
			}, nil)
			s, err := daemon.New(prg, daemon.Config(env))
			if err != nil {
				return err
			}
			if err := daemon.Control(s, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "service %s: %s done\n", daemon.Name, args[0])
			return nil
		},
	}
}
