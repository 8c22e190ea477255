package main

import (
	"fmt"
	"os"

	"github.com/matsen/octosphere/internal/progress"
)

func reportProgress(s progress.Status) {
	logger.Debug("sync progress",
		"run", s.RunID, "orcid", s.ORCID, "state", s.State,
		"done", s.Done, "total", s.Total, "failed", s.Failed)
	if humanOutput && s.State == progress.StateRunning && s.Total > 0 {
		fmt.Fprintln(os.Stderr, progressLine(s))
	}
}

func progressLine(s progress.Status) string {
	line := fmt.Sprintf("  %s: %d/%d", s.ORCID, s.Done, s.Total)
	if s.Failed > 0 {
		line += fmt.Sprintf(" (%d failed)", s.Failed)
	}
	return line
}
