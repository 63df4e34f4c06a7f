package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/shared"
	"github.com/desertthunder/scrobble/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylogConvert pairs playback events from a legacy play log into listens.
func (r *Runner) PlaylogConvert(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path to a play log is required", shared.ErrMissingArgument)
	}

	config := r.loadConfig(cmd)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open play log: %w", err)
	}
	defer f.Close()

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewEngine(tasks.EngineOpts{
		Listens: repositories.NewListens(db),
		Logger:  r.logger,
	})

	inserted, skipped, err := engine.ConvertPlayLog(f)
	if err != nil {
		return fmt.Errorf("conversion failed after %d listens: %w", inserted, err)
	}
	return r.writePlain("✓ Converted %d listens (%d duplicates skipped)\n", inserted, skipped)
}
