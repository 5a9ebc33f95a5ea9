package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/adapter"
	"github.com/pithecene-io/runledger/backfill"
	"github.com/pithecene-io/runledger/cli/config"
	"github.com/pithecene-io/runledger/cli/render"
	"github.com/pithecene-io/runledger/iox"
	"github.com/pithecene-io/runledger/lode"
	"github.com/pithecene-io/runledger/log"
	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/runtime"
	"github.com/pithecene-io/runledger/types"
)

// exitUsage is returned for invalid invocations, before any attempt is closed.
// It is distinct from the outcome exit codes 0, 1 and 2.
const exitUsage = 64

// CloseCommand returns the close command.
// Close replays an attempt event log and closes the attempt.
func CloseCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "events",
			Usage:    "Path to the attempt event log (\"-\" reads stdin)",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "exit-code",
			Usage: "Process exit code (overrides the log's exit frame)",
		},
		&cli.BoolFlag{
			Name:  "cancelled",
			Usage: "Mark the attempt as cancelled",
		},
		&cli.StringFlag{
			Name:     "job-id",
			Usage:    "Job ID",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "attempt",
			Usage: "Attempt number within the job (starts at 0)",
		},
		&cli.StringFlag{
			Name:  "connection-id",
			Usage: "Connection ID",
		},
		&cli.StringFlag{
			Name:  "workspace-id",
			Usage: "Workspace ID",
		},
		&cli.StringFlag{
			Name:  "catalog",
			Usage: "Path to the configured catalog JSON",
		},
		&cli.StringFlag{
			Name:  "state",
			Usage: "Path to the persisted state JSON the attempt started from",
		},
		&cli.StringFlag{
			Name:  "diff",
			Usage: "Path to the schema diff JSON applied before the attempt",
		},
		&cli.StringFlag{
			Name:  "backfill",
			Usage: "Backfill preference: enabled or disabled",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write the JSON attempt report to this path (\"-\" for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
		ConfigFlag,
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, adapterFlags()...)
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "close",
		Usage:  "Close an attempt from its event log: finalize statuses, order failures, decide the outcome",
		Flags:  flags,
		Action: closeAction,
	}
}

// closeInputs is everything closeAction resolves before touching the log.
type closeInputs struct {
	meta       types.AttemptMeta
	catalog    types.Catalog
	state      *types.PersistedState
	diff       *types.SchemaDiff
	preference backfill.Preference
	storage    storageChoice
	adapter    *adapterChoice
	reportPath string
}

func resolveCloseInputs(c *cli.Context, cfg *config.Config) (*closeInputs, error) {
	in := &closeInputs{
		meta: types.AttemptMeta{
			JobID:         c.String("job-id"),
			AttemptNumber: c.Int("attempt"),
			ConnectionID:  c.String("connection-id"),
			WorkspaceID:   c.String("workspace-id"),
		},
		reportPath: resolveString(c, "report", configVal(cfg, func(c *config.Config) string { return c.Report.Path })),
		storage:    resolveStorageChoice(c, cfg),
	}
	if err := in.meta.Validate(); err != nil {
		return nil, err
	}
	if stdinCount(c.String("events"), c.String("catalog"), c.String("state"), c.String("diff")) > 1 {
		return nil, errors.New("only one of --events, --catalog, --state, --diff may read stdin")
	}

	var err error
	if in.catalog, err = loadCatalog(c.String("catalog")); err != nil {
		return nil, err
	}
	if in.state, err = loadState(c.String("state")); err != nil {
		return nil, err
	}
	if in.diff, err = loadDiff(c.String("diff")); err != nil {
		return nil, err
	}

	cfgPref, err := configBackfillPreference(cfg)
	if err != nil {
		return nil, err
	}
	switch pref := backfill.Preference(resolveString(c, "backfill", string(cfgPref))); pref {
	case "", backfill.PreferenceDisabled:
		in.preference = backfill.PreferenceDisabled
	case backfill.PreferenceEnabled:
		in.preference = backfill.PreferenceEnabled
	default:
		return nil, fmt.Errorf("invalid --backfill %q (must be enabled or disabled)", pref)
	}

	if err := validateStorageChoice(in.storage); err != nil {
		return nil, err
	}

	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type }))
	if adapterType != "" {
		if in.adapter, err = parseAdapterConfigWithPrecedence(c, cfg, adapterType); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// configBackfillPreference returns the config's backfill preference, disabled for a nil config.
func configBackfillPreference(cfg *config.Config) (backfill.Preference, error) {
	if cfg == nil {
		return "", nil
	}
	return cfg.BackfillPreference()
}

func closeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	in, err := resolveCloseInputs(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	logger := log.NewLogger(&in.meta).WithOutput(c.App.ErrWriter)
	defer iox.DiscardErr(logger.Sync)

	collector := metrics.NewCollector(in.storage.backend, in.meta.JobID, in.meta.ConnectionID)
	attempt, err := runtime.NewAttempt(&runtime.AttemptConfig{
		Meta:      in.meta,
		Catalog:   in.catalog,
		Flags:     configVal(cfg, (*config.Config).FlagClient),
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	var prep *runtime.Preparation
	if in.state != nil || in.diff != nil {
		prep = attempt.Prepare(runtime.PrepareInput{
			State:       in.state,
			AppliedDiff: in.diff,
			Backfill:    in.preference,
		})
	}

	events, err := iox.OpenInput(c.String("events"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardClose(events)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := runtime.NewIngestionEngine(events, attempt, logger, collector)
	runErr := engine.Run(ctx)
	if runErr != nil && !runtime.IsCanceledError(runErr) {
		logger.Error("event log ended abnormally", map[string]any{"error": runErr.Error()})
	}

	exitCode, cancelled := resolveExitSignal(c, engine, runErr, logger)
	result := attempt.Close(exitCode, cancelled)
	report := runtime.BuildAttemptReport(result, prep, collector.Snapshot(), engine.FrameCount())
	closedAt := time.Now()

	// Archive and publish run on a fresh context so a cancelled attempt is
	// still recorded.
	outCtx := context.WithoutCancel(c.Context)
	storagePath := archiveReport(outCtx, in, report, closedAt, collector, logger)
	publishReport(outCtx, in, report, storagePath, closedAt, logger)

	if in.reportPath != "" {
		if err := runtime.WriteAttemptReport(report, in.reportPath); err != nil {
			logger.Error("failed to write attempt report", map[string]any{"error": err.Error()})
		}
	}

	if !c.Bool("quiet") {
		if err := renderClose(r, report); err != nil {
			return err
		}
	}

	if report.ExitCode == 0 {
		return nil
	}
	return cli.Exit("", report.ExitCode)
}

// resolveExitSignal picks the exit code and cancellation for the attempt.
// Precedence: --exit-code, then the log's exit frame. A log without an exit
// frame closes with exit code 1.
func resolveExitSignal(c *cli.Context, engine *runtime.IngestionEngine, runErr error, logger *log.Logger) (int, bool) {
	cancelled := c.Bool("cancelled") || runtime.IsCanceledError(runErr)
	exit, ok := engine.Exit()
	if ok {
		cancelled = cancelled || exit.Cancelled
	}

	switch {
	case c.IsSet("exit-code"):
		return c.Int("exit-code"), cancelled
	case ok:
		return exit.ExitCode, cancelled
	default:
		logger.Warn("event log has no exit frame, closing with exit code 1", nil)
		return 1, cancelled
	}
}

// archiveReport writes report to the configured archive and returns the
// storage path, or "" when archiving is disabled or failed.
func archiveReport(ctx context.Context, in *closeInputs, report *runtime.AttemptReport, closedAt time.Time, collector *metrics.Collector, logger *log.Logger) string {
	if !in.storage.enabled() {
		return ""
	}
	target, err := openArchive(ctx, in.storage, lode.ConfigFor(in.storage.dataset, in.meta, closedAt), collector)
	if err != nil {
		logger.Error("failed to open archive", map[string]any{"error": err.Error()})
		return ""
	}
	defer iox.DiscardClose(target.archive)

	if err := target.archive.WriteReport(ctx, report, closedAt); err != nil {
		fields := map[string]any{"error": err.Error()}
		var se *lode.StorageError
		if errors.As(err, &se) {
			fields["retryable"] = se.IsRetryable()
		}
		logger.Error("failed to archive attempt", fields)
		return ""
	}
	logger.Info("attempt archived", map[string]any{"storage_path": target.storagePath})
	return target.storagePath
}

// publishReport sends the attempt closed event when an adapter is configured.
func publishReport(ctx context.Context, in *closeInputs, report *runtime.AttemptReport, storagePath string, closedAt time.Time, logger *log.Logger) {
	if in.adapter == nil {
		return
	}
	a, err := buildAdapter(in.adapter)
	if err != nil {
		logger.Error("failed to create adapter", map[string]any{"error": err.Error()})
		return
	}
	defer iox.DiscardClose(a)

	event := adapter.NewAttemptClosedEvent(report, storagePath, closedAt)
	if err := a.Publish(ctx, event); err != nil {
		logger.Error("failed to publish attempt closed event", map[string]any{
			"adapter":  in.adapter.adapterType,
			"event_id": event.EventID,
			"error":    err.Error(),
		})
		return
	}
	logger.Info("attempt closed event published", map[string]any{
		"adapter":  in.adapter.adapterType,
		"event_id": event.EventID,
	})
}
