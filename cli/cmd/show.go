package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/cli/reader"
	"github.com/pithecene-io/runledger/cli/render"
	"github.com/pithecene-io/runledger/lode"
)

// ShowCommand returns the show command.
// Show reads a closed attempt back from the archive.
func ShowCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "job-id",
			Usage:    "Job ID",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "attempt",
			Usage: "Attempt number (default: latest archived attempt)",
			Value: -1,
		},
		&cli.StringFlag{
			Name:  "connection-id",
			Usage: "Connection ID",
		},
		ConfigFlag,
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "show",
		Usage:  "Show an archived attempt: outcome, stream statuses and ordered failures",
		Flags:  flags,
		Action: showAction,
	}
}

func showAction(c *cli.Context) error {
	rd, r, err := openReader(c)
	if err != nil {
		return err
	}

	jobID := c.String("job-id")
	detail, err := rd.Attempt(c.Context, c.String("connection-id"), jobID, c.Int("attempt"))
	if errors.Is(err, lode.ErrNoRecordsFound) {
		return cli.Exit(fmt.Sprintf("no archived attempt for job %s", jobID), 1)
	}
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	return r.RenderView(detail,
		render.Section{Title: "Attempt", Data: archivedSummary(detail.Attempt)},
		render.Section{Title: "Streams", Data: archivedStatusRows(detail.Statuses)},
		render.Section{Title: "Failures", Data: archivedFailureRows(detail.Failures)},
	)
}

// openReader resolves storage flags and opens the archive for reading.
// Errors are already cli.Exit errors.
func openReader(c *cli.Context) (*reader.Reader, *render.Renderer, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitUsage)
	}

	storage := resolveStorageChoice(c, cfg)
	if storage.backend == "" {
		return nil, nil, cli.Exit("--storage-backend is required", exitUsage)
	}
	if err := validateStorageChoice(storage); err != nil {
		return nil, nil, cli.Exit(err.Error(), exitUsage)
	}

	ds, err := buildReadDataset(c.Context, storage)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitUsage)
	}
	return reader.New(ds), r, nil
}

func archivedSummary(s reader.AttemptSummary) attemptSummary {
	return attemptSummary{
		JobID:          s.JobID,
		Attempt:        s.Attempt,
		Outcome:        s.Outcome,
		Message:        s.Message,
		PartialSuccess: s.PartialSuccess,
		ExitCode:       s.ExitCode,
		DurationMs:     s.DurationMs,
		Frames:         s.FrameCount,
	}
}

func archivedStatusRows(statuses []reader.ArchivedStatus) []statusRow {
	rows := make([]statusRow, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, statusRow{
			Namespace: namespaceCell(s.Stream),
			Name:      s.Stream.Name,
			Status:    string(s.Status),
			Cause:     string(s.IncompleteCause),
		})
	}
	return rows
}

func archivedFailureRows(failures []reader.ArchivedFailure) []failureRow {
	rows := make([]failureRow, 0, len(failures))
	for _, f := range failures {
		row := failureRow{
			Origin:  f.Origin,
			Type:    f.Type,
			Message: truncateCell(f.ExternalMessage),
		}
		if f.Stream != nil {
			row.Stream = f.Stream.String()
		}
		if f.Retryable != nil {
			row.Retryable = strconv.FormatBool(*f.Retryable)
		}
		rows = append(rows, row)
	}
	return rows
}
