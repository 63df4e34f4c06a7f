package main

import (
	"bufio"
	"context"
	"fmt"

	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/services"
	"github.com/desertthunder/scrobble/internal/tasks"
	"github.com/urfave/cli/v3"
)

// LastFMAuth walks the desktop authorization flow: request a token, ask the
// user to approve it in the browser, then exchange it for a session key.
func (r *Runner) LastFMAuth(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	r.warnMissingLastFM(config, false)

	lastfm := services.NewLastFM(config.Credentials.LastFM, "", r.httpClient)

	token, err := lastfm.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to request auth token: %w", err)
	}

	r.writePlain("Please authorize scrobbling at the following page:\n\n  %s\n\n", lastfm.AuthorizeURL(token))
	r.writePlain("Press Enter when done. ")
	if _, err := bufio.NewReader(r.input).ReadString('\n'); err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}

	user, key, err := lastfm.GetSession(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to obtain session: %w", err)
	}

	r.writePlainln("Scrobbling authorized by user %s.", user)
	r.writePlain("Add the session key to your config or environment:\n\n")
	r.writePlain("  [credentials.lastfm]\n  session_key = %q\n  user = %q\n\n", key, user)
	return r.writePlain("  LAST_FM_SESSION_KEY=%s\n", key)
}

// LastFMScrobble submits all eligible listens to Last.fm in order.
func (r *Runner) LastFMScrobble(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	r.warnMissingLastFM(config, true)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewEngine(tasks.EngineOpts{
		Listens: repositories.NewListens(db),
		LastFM:  services.NewLastFM(config.Credentials.LastFM, "", r.httpClient),
		Logger:  r.logger,
	})

	n, err := engine.ScrobbleLastFM(ctx)
	if err != nil {
		return fmt.Errorf("scrobbling aborted after %d listens: %w", n, err)
	}
	if n == 0 {
		return r.writePlain("Nothing to scrobble.\n")
	}
	return r.writePlain("✓ Scrobbled %d listens to Last.fm\n", n)
}

// LastFMImport reconciles remote listening history into the staging table.
func (r *Runner) LastFMImport(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	r.warnMissingLastFM(config, false)
	full := cmd.Bool("full")

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	importer := tasks.NewImporter(tasks.ImporterOpts{
		Imports: repositories.NewImports(db),
		LastFM:  services.NewLastFM(config.Credentials.LastFM, "", r.httpClient),
		User:    config.Credentials.LastFM.User,
		Logger:  r.logger,
	})

	run, err := importer.Run(ctx, full)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return r.writePlain("✓ Imported %d rows over %d pages (%s)\n", run.RowsInserted, run.Pages, run.Mode)
}
