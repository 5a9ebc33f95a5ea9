package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/cli/reader"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// listRow is one archived attempt in list output. List returns thin slices,
// not show-level detail.
type listRow struct {
	ClosedAt   string `json:"closed_at"`
	Connection string `json:"connection_id"`
	JobID      string `json:"job_id"`
	Attempt    int    `json:"attempt"`
	Outcome    string `json:"outcome"`
	Failures   int64  `json:"failures"`
}

// archiveFilterFlags select archived attempts for list and stats.
func archiveFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "connection-id",
			Usage: "Filter by connection ID",
		},
		&cli.StringFlag{
			Name:  "job-id",
			Usage: "Filter by job ID",
		},
		&cli.StringFlag{
			Name:  "outcome",
			Usage: "Filter by outcome: succeeded, failed, cancelled",
		},
	}
}

func archiveFilter(c *cli.Context) (reader.ListOptions, error) {
	opts := reader.ListOptions{
		ConnectionID: c.String("connection-id"),
		JobID:        c.String("job-id"),
		Outcome:      c.String("outcome"),
	}
	switch opts.Outcome {
	case "", "succeeded", "failed", "cancelled":
		return opts, nil
	default:
		return opts, fmt.Errorf("invalid --outcome %q (must be succeeded, failed or cancelled)", opts.Outcome)
	}
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	flags := archiveFilterFlags()
	flags = append(flags,
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of attempts to return (0 = no limit)",
		},
		ConfigFlag,
	)
	flags = append(flags, storageFlags()...)
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "list",
		Usage:  "List archived attempts, most recently closed first",
		Flags:  flags,
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	opts, err := archiveFilter(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	opts.Limit = c.Int("limit")

	rd, r, err := openReader(c)
	if err != nil {
		return err
	}

	attempts, err := rd.ListAttempts(c.Context, opts)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(attempts) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		_, _ = fmt.Fprintf(c.App.ErrWriter, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(attempts))
	}

	rows := make([]listRow, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, listRow{
			ClosedAt:   a.ClosedAt.UTC().Format(time.RFC3339),
			Connection: a.ConnectionID,
			JobID:      a.JobID,
			Attempt:    a.Attempt,
			Outcome:    a.Outcome,
			Failures:   a.Failures,
		})
	}
	return r.Render(rows)
}
