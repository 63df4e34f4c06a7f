package main

import (
	"context"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/urfave/cli/v3"
)

// struct palette is a simple stylesheet built with named [lipgloss.Style] fields
type palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func newPalette(t, s, w, h string) *palette {
	style := func(fg string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
	}
	return &palette{
		title: style(t).Bold(true),
		ok:    style(s).Bold(true),
		warn:  style(w),
		help:  style(h).Italic(true),
	}
}

var styles = newPalette("#7D56F4", "#04B575", "#FFA500", "#626262")

// Status prints listen counts and the most recent import run.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	listens := repositories.NewListens(db)
	imports := repositories.NewImports(db)

	pending, submitted, err := listens.Counts()
	if err != nil {
		return err
	}
	staged, err := imports.StagedCount()
	if err != nil {
		return err
	}

	if err := r.writePlain("%s\n\n", styles.title.Render("Scrobble status")); err != nil {
		return err
	}

	pendingStyle := styles.ok
	if pending > 0 {
		pendingStyle = styles.warn
	}
	r.writePlain("  Pending listens:   %s\n", pendingStyle.Render(formatCount(pending)))
	r.writePlain("  Submitted listens: %s\n", styles.ok.Render(formatCount(submitted)))
	r.writePlain("  Staged imports:    %s\n", styles.ok.Render(formatCount(staged)))

	run, err := imports.LastRun()
	if err != nil {
		return err
	}
	if run == nil {
		return r.writePlainln("%s", styles.help.Render("No import runs yet. Try 'scrobble lastfm import'."))
	}

	state := "completed"
	if !run.Completed {
		state = "incomplete"
	}
	return r.writePlainln("Last import: %s %s at %s (%d pages, %d rows)",
		run.Mode, state, run.StartedAt, run.Pages, run.RowsInserted)
}

func formatCount(n int64) string {
	if n == 1 {
		return "1 listen"
	}
	return strconv.FormatInt(n, 10) + " listens"
}
