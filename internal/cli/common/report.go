package common

import (
	"fmt"
	"io"

	"github.com/crmarques/catalogsync/reconciler"
)

// Report is the rendered statistics of one kind.
type Report struct {
	Kind       string   `json:"kind" yaml:"kind"`
	Processed  int64    `json:"processed" yaml:"processed"`
	Created    int64    `json:"created" yaml:"created"`
	Updated    int64    `json:"updated" yaml:"updated"`
	Failed     int64    `json:"failed" yaml:"failed"`
	Unresolved int64    `json:"unresolved" yaml:"unresolved"`
	Errors     []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Summary    string   `json:"summary" yaml:"summary"`
}

func NewReport(stats *reconciler.Statistics) Report {
	counts := stats.Counts()
	return Report{
		Kind:       stats.Kind.String(),
		Processed:  counts.Processed,
		Created:    counts.Created,
		Updated:    counts.Updated,
		Failed:     counts.Failed,
		Unresolved: counts.Unresolved,
		Errors:     stats.Errors(),
		Warnings:   stats.Warnings(),
		Summary:    stats.Report(),
	}
}

// RenderReports writes one summary line per report.
func RenderReports(w io.Writer, reports []Report) error {
	for _, report := range reports {
		if _, err := fmt.Fprintln(w, report.Summary); err != nil {
			return err
		}
	}
	return nil
}

// FailedDraftsError fails the command when any report counted failures.
func FailedDraftsError(reports []Report) error {
	var failed int64
	for _, report := range reports {
		failed += report.Failed
	}
	if failed == 0 {
		return nil
	}
	return InternalError(fmt.Sprintf("%d drafts failed to sync", failed), nil)
}
