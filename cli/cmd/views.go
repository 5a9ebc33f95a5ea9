package cmd

import (
	"encoding/json"

	"github.com/pithecene-io/runledger/cli/render"
	"github.com/pithecene-io/runledger/runtime"
	"github.com/pithecene-io/runledger/types"
)

// attemptSummary is the table header block of a closed attempt.
type attemptSummary struct {
	JobID          string `json:"job_id"`
	Attempt        int    `json:"attempt"`
	Outcome        string `json:"outcome"`
	Message        string `json:"message"`
	PartialSuccess bool   `json:"partial_success"`
	ExitCode       int    `json:"exit_code"`
	DurationMs     int64  `json:"duration_ms"`
	Frames         int64  `json:"frames"`
}

// streamRow is one stream in table output.
type streamRow struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// statusRow is one finalized stream status in table output.
type statusRow struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Cause     string `json:"cause"`
}

// failureRow is one ordered failure in table output.
type failureRow struct {
	Origin    string `json:"origin"`
	Type      string `json:"type"`
	Stream    string `json:"stream"`
	Retryable string `json:"retryable"`
	Message   string `json:"message"`
}

// metadataRow is one per-stream attempt metadata entry in table output.
type metadataRow struct {
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Backfilled bool   `json:"backfilled"`
	Resumed    bool   `json:"resumed"`
}

// stateRow is one per-stream state entry in table output.
type stateRow struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	State     string `json:"state"`
}

func streamRows(streams []types.StreamDescriptor) []streamRow {
	rows := make([]streamRow, 0, len(streams))
	for _, d := range streams {
		rows = append(rows, streamRow{Namespace: namespaceCell(d), Name: d.Name})
	}
	return rows
}

func statusRows(statuses []types.StatusMessage) []statusRow {
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

func failureRows(failures []types.FailureRecord) []failureRow {
	rows := make([]failureRow, 0, len(failures))
	for _, f := range failures {
		row := failureRow{
			Origin:  string(f.Origin),
			Type:    string(f.Type),
			Message: truncateCell(f.ExternalMessage),
		}
		if f.Stream != nil {
			row.Stream = f.Stream.String()
		}
		if f.Retryable != nil {
			row.Retryable = "false"
			if *f.Retryable {
				row.Retryable = "true"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func metadataRows(entries []types.StreamAttemptMetadata) []metadataRow {
	rows := make([]metadataRow, 0, len(entries))
	for _, m := range entries {
		rows = append(rows, metadataRow{
			Namespace:  namespaceCell(m.Stream),
			Name:       m.Stream.Name,
			Backfilled: m.WasBackfilled,
			Resumed:    m.WasResumed,
		})
	}
	return rows
}

func stateRows(state *types.PersistedState) []stateRow {
	entries := state.PerStreamStates()
	rows := make([]stateRow, 0, len(entries))
	for _, s := range entries {
		row := stateRow{Namespace: namespaceCell(s.Stream), Name: s.Stream.Name, State: "null"}
		if s.HasState() {
			row.State = truncateCell(compactJSON(s.State))
		}
		rows = append(rows, row)
	}
	return rows
}

// namespaceCell renders an absent namespace as "-" and an empty one as "".
func namespaceCell(d types.StreamDescriptor) string {
	if !d.HasNamespace {
		return "-"
	}
	return d.Namespace
}

const maxCellWidth = 60

func truncateCell(s string) string {
	r := []rune(s)
	if len(r) <= maxCellWidth {
		return s
	}
	return string(r[:maxCellWidth-3]) + "..."
}

func compactJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// renderClose prints a closed attempt. json and yaml print the full report.
func renderClose(r *render.Renderer, report *runtime.AttemptReport) error {
	summary := attemptSummary{
		JobID:          report.JobID,
		Attempt:        report.Attempt,
		Outcome:        string(report.Outcome),
		Message:        report.Message,
		PartialSuccess: report.PartialSuccess,
		ExitCode:       report.ExitCode,
		DurationMs:     report.DurationMs,
		Frames:         report.FrameCount,
	}
	return r.RenderView(report,
		render.Section{Title: "Attempt", Data: summary},
		render.Section{Title: "Streams", Data: statusRows(report.Statuses)},
		render.Section{Title: "Failures", Data: failureRows(report.Failures)},
	)
}
