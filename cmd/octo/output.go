package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/matsen/octosphere/internal/atproto"
	"github.com/matsen/octosphere/internal/bridge"
	"github.com/matsen/octosphere/internal/config"
	"github.com/matsen/octosphere/internal/octopus"
	"github.com/matsen/octosphere/internal/secret"
)

// TitleMaxLen truncates titles in human listings.
const TitleMaxLen = 60

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		_, _ = errorColor.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitCodeFor classifies err into an exit code.
func exitCodeFor(err error) int {
	switch {
	case atproto.IsAuthError(err):
		return ExitAuthError
	case errors.Is(err, octopus.ErrSourceUnavailable), errors.Is(err, atproto.ErrRemoteFailure):
		return ExitRemoteError
	case errors.Is(err, config.ErrMissing), errors.Is(err, secret.ErrInvalidKey):
		return ExitConfigError
	default:
		return ExitError
	}
}

// exitOnError exits with a classified code and an actionable message.
func exitOnError(err error, what string) {
	if err == nil {
		return
	}
	msg := err.Error()
	if atproto.IsAuthError(err) || atproto.IsUnreachable(err) {
		msg = atproto.UserMessage(err)
	}
	exitWithError(exitCodeFor(err), "%s: %s", what, msg)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	ORCID  string `json:"orcid,omitempty"`
}

func printSuccess(format string, args ...any) {
	_, _ = successColor.Printf("✓ "+format+"\n", args...)
}

func printWarning(format string, args ...any) {
	_, _ = warningColor.Printf("⚠ "+format+"\n", args...)
}

func printFailure(format string, args ...any) {
	_, _ = errorColor.Printf("✗ "+format+"\n", args...)
}

func printDim(format string, args ...any) {
	_, _ = dimColor.Printf(format+"\n", args...)
}

// printReport renders a sync report for humans.
func printReport(r *bridge.Report) {
	for _, res := range r.Results {
		printSuccess("%s (version %s) -> %s", res.PublicationID, res.VersionID, res.URI)
		if res.FabricatedTimestamps {
			printDim("    Octopus omitted timestamps; sync time was used")
		}
	}
	for _, f := range r.Failures {
		printFailure("%s (version %s): %s", f.PublicationID, f.VersionID, f.Message)
	}
	fmt.Printf("\n%d written, %d already synced, %d failed (of %d listed)\n",
		len(r.Results), r.Skipped, len(r.Failures), r.Total)
}

// truncate shortens s to n runes, adding an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
