// Package cli is the livecare command tree. Every command resolves its
// services through a Backend built after configuration and logging are
// initialised.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/livecare/internal/config"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// DefaultTimeout bounds a whole command invocation.
const DefaultTimeout = 10 * time.Minute

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Timeout      time.Duration
}

// CLIContext carries initialised dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Backend      Backend
	OutputFormat string
	Timeout      time.Duration
}

// WithTimeout derives the per-invocation deadline from the --timeout flag.
func (c *CLIContext) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// RootOption customises command construction, mainly for tests.
type RootOption func(*rootState)

// WithBackendFactory replaces NewBackend.
func WithBackendFactory(f BackendFactory) RootOption {
	return func(s *rootState) { s.factory = f }
}

// WithConfigLoader replaces the configuration lookup.
func WithConfigLoader(load func(path string) (*config.Config, error)) RootOption {
	return func(s *rootState) { s.loadConfig = load }
}

// WithLogger skips logger construction.
func WithLogger(l logging.Logger) RootOption {
	return func(s *rootState) { s.logger = l }
}

type rootState struct {
	opts       RootOptions
	factory    BackendFactory
	loadConfig func(path string) (*config.Config, error)
	logger     logging.Logger
	active     *CLIContext
}

func (s *rootState) shutdown() error {
	if s.active == nil || s.active.Backend == nil {
		return nil
	}
	err := s.active.Backend.Close()
	s.active.Backend = nil
	return err
}

// NewRootCommand creates the root command with all global flags and
// subcommands.
func NewRootCommand(opts ...RootOption) *cobra.Command {
	cmd, _ := newRootCommand(opts...)
	return cmd
}

func newRootCommand(opts ...RootOption) (*cobra.Command, *rootState) {
	s := &rootState{factory: NewBackend, loadConfig: loadConfig}
	for _, o := range opts {
		o(s)
	}

	cmd := &cobra.Command{
		Use:   "livecare",
		Short: "LiveCare turns prescriptions and consultations into structured charts",
		Long: "LiveCare reads Korean prescription documents and consultation recordings,\n" +
			"resolves the drugs they mention against the MFDS open-data registry and\n" +
			"produces multidisciplinary care charts and medical charts.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.preRun(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return s.shutdown()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&s.opts.ConfigPath, "config", "c", "", "config file path (default: ./livecare.yaml, configs/livecare.yaml)")
	pf.StringVar(&s.opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides log.level")
	pf.StringVarP(&s.opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.DurationVar(&s.opts.Timeout, "timeout", DefaultTimeout, "overall command timeout, 0 for none")

	cmd.AddCommand(
		newMigrateCmd(),
		newPrescriptionCmd(),
		newEncounterCmd(),
		newChartCmd(),
		newDrugCmd(),
		newDURCmd(),
		newPatientCmd(),
		newMetricsCmd(),
		newVersionCmd(),
	)
	return cmd, s
}

func (s *rootState) preRun(cmd *cobra.Command) error {
	switch strings.ToLower(s.opts.OutputFormat) {
	case "text", "json":
	default:
		return errors.Newf(errors.ErrCodeValidation, "invalid output format %q (expected text or json)", s.opts.OutputFormat)
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := s.loadConfig(s.opts.ConfigPath)
	if err != nil {
		return err
	}
	if s.opts.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(s.opts.LogLevel)
	}

	logger := s.logger
	if logger == nil {
		logger, err = initLogger(cfg)
		if err != nil {
			return fmt.Errorf("logger initialization failed: %w", err)
		}
	}

	backend, err := s.factory(cfg, logger)
	if err != nil {
		return err
	}

	s.active = &CLIContext{
		Config:       cfg,
		Logger:       logger,
		Backend:      backend,
		OutputFormat: strings.ToLower(s.opts.OutputFormat),
		Timeout:      s.opts.Timeout,
	}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, s.active))
	return nil
}

// loadConfig prefers an explicit path, then the default search paths, then
// the environment alone.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	candidates := []string{"livecare.yaml", filepath.Join("configs", "livecare.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".livecare", "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.LoadFromEnv()
}

// initLogger keeps log output off stdout so command results stay parseable.
func initLogger(cfg *config.Config) (logging.Logger, error) {
	logCfg := cfg.Log
	if len(logCfg.OutputPaths) == 0 {
		logCfg.OutputPaths = []string{"stderr"}
	}
	if len(logCfg.ErrorOutputPaths) == 0 {
		logCfg.ErrorOutputPaths = []string{"stderr"}
	}
	return logging.NewLogger(logCfg)
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLI context not initialised")
	}
	return cliCtx, nil
}

// Run executes the command tree with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...RootOption) int {
	cmd, state := newRootCommand(opts...)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if closeErr := state.shutdown(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		PrintError(cmd, err)
		return exitCode(err)
	}
	return 0
}

// Execute is the entry point used by main.
func Execute() int {
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func exitCode(err error) int {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ExitCode(errors.ErrCodeTimeout)
	}
	return errors.ExitCode(errors.GetCode(err))
}
