package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/services"
	"github.com/desertthunder/scrobble/internal/shared"
	"github.com/desertthunder/scrobble/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync runs the full pipeline: scrobble to Last.fm, submit to ListenBrainz,
// then import recent history into staging. A service with missing
// credentials is skipped with a warning rather than failing the run.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	r.warnMissingLastFM(config, true)
	r.warnMissingListenBrainz(config)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	listens := repositories.NewListens(db)
	engine := tasks.NewEngine(tasks.EngineOpts{
		Listens:      listens,
		LastFM:       services.NewLastFM(config.Credentials.LastFM, "", r.httpClient),
		ListenBrainz: services.NewListenBrainz(config.Credentials.ListenBrainz, "", r.httpClient),
		Logger:       r.logger,
	})

	if config.Credentials.LastFM.SessionKey == "" {
		r.logger.Warn("skipping Last.fm scrobbling")
	} else {
		n, err := engine.ScrobbleLastFM(ctx)
		if err != nil {
			return fmt.Errorf("scrobbling aborted after %d listens: %w", n, err)
		}
		r.writePlain("✓ Scrobbled %d listens to Last.fm\n", n)
	}

	if config.Credentials.ListenBrainz.Token == "" {
		r.logger.Warn("skipping ListenBrainz submission")
	} else {
		n, err := engine.SubmitListenBrainz(ctx)
		if err != nil {
			return fmt.Errorf("submission aborted after %d listens: %w", n, err)
		}
		r.writePlain("✓ Submitted %d listens to ListenBrainz\n", n)
	}

	importer := tasks.NewImporter(tasks.ImporterOpts{
		Imports: repositories.NewImports(db),
		LastFM:  services.NewLastFM(config.Credentials.LastFM, "", r.httpClient),
		User:    config.Credentials.LastFM.User,
		Logger:  r.logger,
	})

	run, err := importer.Run(ctx, false)
	if err != nil {
		if errors.Is(err, shared.ErrMissingCredentials) {
			r.logger.Warn("skipping history import", "error", err)
			return nil
		}
		return fmt.Errorf("import failed: %w", err)
	}
	return r.writePlain("✓ Imported %d rows over %d pages\n", run.RowsInserted, run.Pages)
}
