// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the configuration file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the listens database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// statusCommand reports listen and import counts
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show pending and submitted listen counts",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Status,
	}
}

// lastfmCommand handles Last.fm operations
func lastfmCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lastfm",
		Aliases: []string{"lfm"},
		Usage:   "Last.fm scrobbling operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authorize scrobbling and obtain a session key",
				Flags:  []cli.Flag{configFlag()},
				Action: r.LastFMAuth,
			},
			{
				Name:   "scrobble",
				Usage:  "Submit pending listens to Last.fm",
				Flags:  []cli.Flag{configFlag()},
				Action: r.LastFMScrobble,
			},
			{
				Name:  "import",
				Usage: "Import listening history from Last.fm into the staging table",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Walk the entire remote history instead of the recent window",
					},
				},
				Action: r.LastFMImport,
			},
		},
	}
}

// listenbrainzCommand handles ListenBrainz operations
func listenbrainzCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "listenbrainz",
		Aliases: []string{"lbz"},
		Usage:   "ListenBrainz submission operations",
		Commands: []*cli.Command{
			{
				Name:   "submit",
				Usage:  "Submit pending listens to ListenBrainz",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ListenBrainzSubmit,
			},
		},
	}
}

// playlogCommand converts legacy playback event logs
func playlogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlog",
		Usage: "Legacy playback log operations",
		Commands: []*cli.Command{
			{
				Name:  "convert",
				Usage: "Pair started/completed events from a play log into listens",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.PlaylogConvert,
			},
		},
	}
}

// syncCommand submits pending listens everywhere, then imports history
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Scrobble to Last.fm, submit to ListenBrainz, then import history",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Sync,
	}
}
