package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/backfill"
	"github.com/pithecene-io/runledger/cli/render"
	"github.com/pithecene-io/runledger/resume"
	"github.com/pithecene-io/runledger/types"
)

// BackfillResponse is the response for the backfill command.
type BackfillResponse struct {
	StreamsToBackfill types.StreamSet               `json:"streams_to_backfill"`
	State             *types.PersistedState         `json:"state"`
	StreamMetadata    []types.StreamAttemptMetadata `json:"stream_metadata"`
}

// BackfillCommand returns the backfill command.
// It previews which streams a schema diff forces to re-read and the state
// those streams would start from. Nothing is written.
func BackfillCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "diff",
			Usage:    "Path to the schema diff JSON",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "catalog",
			Usage:    "Path to the configured catalog JSON",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "state",
			Usage: "Path to the persisted state JSON",
		},
	}
	return &cli.Command{
		Name:   "backfill",
		Usage:  "Show the streams a schema change backfills and the cleared state",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: backfillAction,
	}
}

func backfillAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if stdinCount(c.String("diff"), c.String("catalog"), c.String("state")) > 1 {
		return cli.Exit("only one of --diff, --catalog, --state may read stdin", exitUsage)
	}

	diff, err := loadDiff(c.String("diff"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	catalog, err := loadCatalog(c.String("catalog"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	state, err := loadState(c.String("state"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	streams := backfill.StreamsToBackfill(diff, catalog)
	cleared := backfill.ClearStateForStreams(state, streams)
	resp := BackfillResponse{
		StreamsToBackfill: streams,
		State:             cleared,
		StreamMetadata:    resume.AttemptMetadata(resume.StreamsWithState(cleared), streams),
	}
	return r.RenderView(resp,
		render.Section{Title: "Streams to backfill", Data: streamRows(streams.Sorted())},
		render.Section{Title: "State", Data: stateRows(cleared)},
		render.Section{Title: "Stream metadata", Data: metadataRows(resp.StreamMetadata)},
	)
}
