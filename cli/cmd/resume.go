package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/cli/render"
	"github.com/pithecene-io/runledger/resume"
	"github.com/pithecene-io/runledger/types"
)

// ResumeResponse is the response for the resume command.
type ResumeResponse struct {
	StreamsWithState types.StreamSet `json:"streams_with_state"`
	ResumedStreams   types.StreamSet `json:"resumed_streams"`
}

// ResumeCommand returns the resume command.
func ResumeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "catalog",
			Usage:    "Path to the configured catalog JSON",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "state",
			Usage:    "Path to the persisted state JSON",
			Required: true,
		},
	}
	return &cli.Command{
		Name:   "resume",
		Usage:  "Show streams with saved state and full-refresh streams an attempt resumes",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: resumeAction,
	}
}

func resumeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if stdinCount(c.String("catalog"), c.String("state")) > 1 {
		return cli.Exit("only one of --catalog, --state may read stdin", exitUsage)
	}

	catalog, err := loadCatalog(c.String("catalog"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	state, err := loadState(c.String("state"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	resp := ResumeResponse{
		StreamsWithState: resume.StreamsWithState(state),
		ResumedStreams:   resume.ResumedFullRefreshStreams(catalog, state),
	}
	return r.RenderView(resp,
		render.Section{Title: "Streams with state", Data: streamRows(resp.StreamsWithState.Sorted())},
		render.Section{Title: "Resumed full-refresh streams", Data: streamRows(resp.ResumedStreams.Sorted())},
	)
}
