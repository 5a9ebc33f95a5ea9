package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// StatsCommand returns the stats command.
// Stats returns aggregated, derived facts over archived outcomes.
func StatsCommand() *cli.Command {
	flags := archiveFilterFlags()
	flags = append(flags, ConfigFlag)
	flags = append(flags, storageFlags()...)
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "stats",
		Usage:  "Show outcome and failure statistics over archived attempts",
		Flags:  flags,
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	opts, err := archiveFilter(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	rd, r, err := openReader(c)
	if err != nil {
		return err
	}

	stats, err := rd.Stats(c.Context, opts)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	return r.Render(stats)
}
