// Package main provides the runledger CLI entrypoint.
//
// Usage:
//
//	runledger <command> [options]
//
// Exit codes for `close`:
//   - 0: attempt succeeded
//   - 1: attempt failed
//   - 2: attempt cancelled
//   - 64: invalid invocation
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/cli/cmd"
	"github.com/pithecene-io/runledger/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "runledger",
		Usage:          "Track stream statuses, failures and outcomes of sync attempts",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CloseCommand(),
			cmd.BackfillCommand(),
			cmd.ResumeCommand(),
			cmd.ShowCommand(),
			cmd.ListCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if code, ok := handleExitError(os.Stderr, err); ok {
		os.Exit(code)
	}
}

// handleExitError prints err to w when it carries a message and returns the
// exit code. ok is false for a nil error.
func handleExitError(w io.Writer, err error) (code int, ok bool) {
	if err == nil {
		return 0, false
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code = exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N) carries no message worth printing.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(w, msg)
		}
		return code, true
	}

	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return 1, true
}
