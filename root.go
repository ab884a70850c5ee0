package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fitupload/internal/config"
	"github.com/tonimelisma/fitupload/internal/uploader"
)

// version is set at build time via ldflags.
var version = "dev"

// usageLine is printed for every usage error.
const usageLine = "Usage: fitupload <token_dir> <fit_path>"

// CLIFlags holds the persistent flag values of one invocation.
type CLIFlags struct {
	ConfigPath string
	History    string
	// HistorySet is true when --history was given, even as "".
	HistorySet bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration and logger to subcommands.
// It is built once in PersistentPreRunE and stored in the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run hook.
// Panics if called before it ran, which is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("BUG: CLIContext not initialized")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "fitupload <token_dir> <fit_path>",
		Short: "Upload a FIT activity file to Garmin Connect",
		Long: `Upload a FIT activity file to Garmin Connect using the tokens stored in
token_dir. If the upload fails, the OAuth2 token is refreshed once, written
back to token_dir, and the upload is retried once.

A token directory named like a subcommand (history, config) must be given
with a path prefix, e.g. ./history.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main maps errors to exit codes.
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 2 {
				return &uploader.UsageError{Message: usageLine}
			}

			// Paths are checked before config loading so a missing path is
			// always a usage error, whatever state the config file is in.
			return uploader.Validate(args[0], args[1])
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags.HistorySet = cmd.Flags().Changed("history")

			cc, err := loadCLIContext(flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
		RunE: runUpload,
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return uploader.Usagef("%v\n%s", err, usageLine)
	})

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.History, "history", "", "upload history database (empty disables)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration from the four-layer
// override chain and builds the logger.
func loadCLIContext(flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// Only pass --history to the resolver if the user explicitly set it.
	if flags.HistorySet {
		history := flags.History
		cli.HistoryDB = &history
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: buildLogger(resolved.LogLevel, flags),
	}, nil
}

// buildLogger creates an slog.Logger from the configured level. --verbose
// and --quiet override it because CLI flags always win.
func buildLogger(configLevel string, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo

	switch configLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// noPositionalArgs rejects arguments to a subcommand. The usual cause is a
// token directory that shares the subcommand's name.
func noPositionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}

	return uploader.Usagef("%q takes no arguments; to upload from a token directory named %q, pass it as ./%s\n%s",
		cmd.CommandPath(), cmd.Name(), cmd.Name(), usageLine)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var usage *uploader.UsageError
	if errors.As(err, &usage) {
		return uploader.ExitUsage
	}

	return 1
}

// reportError prints a user-friendly error message to w. Usage errors are
// printed bare; everything else gets an "Error:" prefix.
func reportError(w io.Writer, err error) {
	if err == nil {
		return
	}

	var usage *uploader.UsageError
	if errors.As(err, &usage) {
		fmt.Fprintln(w, usage.Message)
		return
	}

	fmt.Fprintf(w, "Error: %v\n", err)
}
