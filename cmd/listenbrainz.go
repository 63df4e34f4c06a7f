package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/services"
	"github.com/desertthunder/scrobble/internal/tasks"
	"github.com/urfave/cli/v3"
)

// ListenBrainzSubmit submits all eligible listens to ListenBrainz in
// size-adapted batches.
func (r *Runner) ListenBrainzSubmit(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	r.warnMissingListenBrainz(config)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewEngine(tasks.EngineOpts{
		Listens:      repositories.NewListens(db),
		ListenBrainz: services.NewListenBrainz(config.Credentials.ListenBrainz, "", r.httpClient),
		Logger:       r.logger,
	})

	n, err := engine.SubmitListenBrainz(ctx)
	if err != nil {
		return fmt.Errorf("submission aborted after %d listens: %w", n, err)
	}
	if n == 0 {
		return r.writePlain("Nothing to submit.\n")
	}
	return r.writePlain("✓ Submitted %d listens to ListenBrainz\n", n)
}
