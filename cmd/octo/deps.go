package main

import (
	"context"
	"os"
	"strings"

	"github.com/matsen/octosphere/internal/atproto"
	"github.com/matsen/octosphere/internal/bridge"
	"github.com/matsen/octosphere/internal/octopus"
	"github.com/matsen/octosphere/internal/progress"
	"github.com/matsen/octosphere/internal/secret"
	"github.com/matsen/octosphere/internal/storage"
	"github.com/matsen/octosphere/internal/task"
)

// EnvAppPassword supplies --app-password without putting it in shell history.
const EnvAppPassword = "OCTO_APP_PASSWORD"

// mustValidate exits with the list of missing settings.
func mustValidate(needCredentials bool) {
	if err := settings.Validate(needCredentials); err != nil {
		exitWithError(ExitConfigError, "%v\n\nSet them in the environment, a .env file, or %s", err, configPathHint())
	}
}

func configPathHint() string {
	if configPath != "" {
		return configPath
	}
	return "the config file"
}

// mustOpenDatabase opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase() *storage.DB {
	db, err := storage.OpenDB(settings.DatabasePath)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// mustBox builds the credential box from the configured key, exits on error.
func mustBox() *secret.Box {
	mustValidate(true)
	box, err := secret.NewBoxFromBase64(settings.EncryptionKey)
	if err != nil {
		exitWithError(ExitConfigError, "%v\n\nGenerate one with 'octo keygen'.", err)
	}
	return box
}

func newOctopusClient() *octopus.Client {
	var opts []octopus.ClientOption
	if settings.OctopusToken != "" {
		opts = append(opts, octopus.WithAccessToken(settings.OctopusToken))
	}
	return octopus.NewClient(settings.OctopusAPIURL, settings.OctopusWebURL, opts...)
}

func newATProtoClient() *atproto.Client {
	return atproto.NewClient(settings.PDSURL,
		atproto.WithPLCDirectory(settings.PLCDirectoryURL),
		atproto.WithLogger(logger.With("component", "atproto")))
}

func newEngine(repo *atproto.Client) *bridge.Engine {
	return bridge.NewEngine(newOctopusClient(), repo, bridge.WithLogger(logger.With("component", "bridge")))
}

// newRunner wires the background runner against db. Progress snapshots go
// to the debug log, and to stderr with --human.
func newRunner(db *storage.DB) *task.Runner {
	repo := newATProtoClient()
	tracker := progress.NewTracker(progress.WithNotify(reportProgress))
	return task.NewRunner(db, repo, mustBox(), newEngine(repo),
		task.WithLogger(logger.With("component", "task")),
		task.WithTracker(tracker))
}

// appPassword returns the flag value or $OCTO_APP_PASSWORD.
func appPassword(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvAppPassword)
}

// mustAuthenticate opens a session or exits with an actionable message.
func mustAuthenticate(ctx context.Context, c *atproto.Client, handle, password string) *atproto.Session {
	if handle == "" || password == "" {
		exitWithError(ExitError, "--handle and --app-password (or $%s) are required", EnvAppPassword)
	}
	sess, err := c.Authenticate(ctx, handle, password)
	exitOnError(err, "authenticating "+handle)
	return sess
}

// octopusUserID accepts either a bare id or an Octopus author profile URL.
func octopusUserID(arg string) string {
	if id, ok := octopus.ExtractUserIDFromURL(arg); ok {
		return id
	}
	if strings.Contains(arg, "/") {
		exitWithError(ExitError, "not an Octopus author URL: %s", arg)
	}
	return arg
}
