// Command vango-web drives the edit-stream renderer from the command line:
// it replays recorded edit streams into a document and runs the template
// hot-reload server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vango-web/internal/config"
	"github.com/vango-dev/vango-web/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
	noColor    bool
	features   []string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "vango-web",
		Short: "Edit-stream DOM renderer tools",
		Long: `vango-web applies streams of node edits to a live document.

Commands:
  • replay         apply recorded edit batches and print the document
  • reload-server  push template updates to running renderers
  • version        print build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				errors.DisableColors()
			}
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to "+config.ConfigFileName+" (default: defaults only)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	pf.StringSliceVar(&g.features, "feature", nil, "Enable a feature (mount-reporting, file-ingest, hot-reload, eval); repeatable")

	rootCmd.AddCommand(
		replayCmd(g),
		reloadServerCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file named by --config, or the defaults, and
// applies --feature flags.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg := config.New()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath); err != nil {
			return nil, err
		}
	}
	for _, f := range g.features {
		if err := cfg.Features.Set(f, true); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}
