// Package commands implements the testfang CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/testfang/internal/config"
	"github.com/Sumatoshi-tech/testfang/internal/observability"
	"github.com/Sumatoshi-tech/testfang/internal/run"
	"github.com/Sumatoshi-tech/testfang/internal/store"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
	"github.com/Sumatoshi-tech/testfang/pkg/version"
)

const (
	configFlag        = "config"
	logLevelFlag      = "log-level"
	logJSONFlag       = "log-json"
	storeFlag         = "store"
	checkpointDirFlag = "checkpoint-dir"

	mcpCommandName = "mcp"

	shutdownTimeout = 5 * time.Second
)

// app carries the state shared by every command of one invocation. It is
// filled by the root PersistentPreRunE and torn down by Execute.
type app struct {
	configPath string

	cfg       *config.Config
	logger    *slog.Logger
	providers observability.Providers
	metrics   *observability.MetricsServer
	store     *store.Store

	registry *prioritization.Registry
	now      func() time.Time
}

// Execute builds the command tree, runs it with args and releases every
// resource the command opened.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{registry: prioritization.Default(), now: time.Now}

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	return errors.Join(err, a.close())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "testfang",
		Short: "Test case prioritization on SoDA coverage data",
		Long: `testfang orders test cases so that the most useful ones run first.

Coverage and changesets are stored in the SoDA binary format and can be
imported from plain text directories, JSON documents, or git history.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, configFlag, "", "config file (default: .testfang.yaml in . or $HOME)")
	flags.String(logLevelFlag, "info", "log level: debug, info, warn, error")
	flags.Bool(logJSONFlag, false, "emit JSON logs")
	flags.String(storeFlag, "", "run history database (default: ~/.testfang/history.db)")
	flags.String(checkpointDirFlag, "", "checkpoint directory (default: ~/.testfang/checkpoints)")

	root.AddCommand(
		newPrioritizeCommand(a),
		newReduceCommand(a),
		newAlgorithmsCommand(a),
		newChangesetCommand(a),
		newCoverageCommand(),
		newResultsCommand(),
		newHistoryCommand(a),
		newCheckpointCommand(a),
		newMCPCommand(a),
		newVersionCommand(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	a.cfg = cfg

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.LogLevel = observability.ParseLevel(cfg.Log.Level)
	obsCfg.LogJSON = cfg.Log.JSON
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.PrometheusAddr = cfg.Observability.PrometheusAddr

	if cmd.Name() == mcpCommandName {
		obsCfg.Mode = observability.ModeMCP
		obsCfg.LogJSON = true
	}

	providers, err := observability.Init(cmd.Context(), obsCfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	a.providers = providers
	a.logger = providers.Logger

	if providers.MetricsHandler != nil {
		srv, serveErr := observability.ServeMetrics(obsCfg.PrometheusAddr, providers.MetricsHandler, a.logger)
		if serveErr != nil {
			return serveErr
		}

		a.metrics = srv
	}

	a.logger.Debug("configuration loaded",
		"command", cmd.CommandPath(),
		"algorithm", cfg.Prioritization.Algorithm,
		"store", cfg.Store.Path,
	)

	return nil
}

// openStore opens the run history database on first use.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	s, err := store.Open(ctx, a.cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	a.store = s

	return s, nil
}

func (a *app) checkpoints() *checkpoint.Manager {
	return checkpoint.NewManager(a.cfg.Checkpoint.Dir, a.cfg.Checkpoint.Codec)
}

func (a *app) runner(withStore *store.Store) *run.Runner {
	return &run.Runner{
		Registry:    a.registry,
		Checkpoints: a.checkpoints(),
		Store:       withStore,
		Metrics:     a.providers.Metrics,
		Tracer:      a.providers.Tracer,
		Logger:      a.logger,
		Now:         a.now,
	}
}

func (a *app) close() error {
	var errs []error

	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
		a.metrics = nil
	}

	if a.providers.Shutdown != nil {
		errs = append(errs, a.providers.Shutdown(ctx))
		a.providers.Shutdown = nil
	}

	return errors.Join(errs...)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
