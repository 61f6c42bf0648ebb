// Command lucius compiles triage pipelines and runs them against artifacts.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dozer-project/lucius/internal/config"
	"github.com/dozer-project/lucius/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		FormatError(os.Stderr, err, ShouldUseColor(a.noColor, os.Stderr))
		os.Exit(1)
	}
}

// app holds the resolved configuration and the streams of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string
	output     string
	workers    int
	pipeline   string
	noColor    bool

	cfg    config.Config
	logger *slog.Logger
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: slog.New(slog.DiscardHandler),
	}
}

func (a *app) rootCmd() *cobra.Command {
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "lucius",
		Short:         "Compile and run artifact triage pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", defaults.LogFormat, "Log format: text or json")
	flags.StringVarP(&a.pipeline, "pipeline", "p", "", "Pipeline file (- for stdin)")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		a.checkCmd(),
		a.runCmd(),
		a.planCmd(),
		a.opsCmd(),
		a.watchCmd(),
		a.versionCmd(),
	)
	return root
}

// configure layers flags over the config file over defaults, then installs
// the logger.
func (a *app) configure(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if flags.Changed("output") {
		cfg.Output = a.output
	}
	if flags.Changed("workers") {
		cfg.Workers = a.workers
	}
	if flags.Changed("pipeline") {
		cfg.Pipeline = a.pipeline
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.LogFormat, a.stderr)

	a.cfg = cfg
	a.logger = logging.New("lucius")
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lucius version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(a.stdout, "lucius %s\n", version)
			return err
		},
	}
}
