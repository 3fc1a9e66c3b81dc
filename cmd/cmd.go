// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func watchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "download",
			Usage: "Download all artifacts once processing completes",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Artifact output directory (default: [download] dir)",
		},
		&cli.BoolFlag{
			Name:  "cleanup",
			Usage: "Delete the remote task after it finishes",
		},
	}
}

func formatFlags(value string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, json, yaml or markdown",
			Value:   value,
		},
		&cli.BoolFlag{
			Name:  "render",
			Usage: "Style markdown output for the terminal",
		},
	}
}

// uploadCommand submits a JSON file for processing
func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Upload a JSON file to the report processor",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow the task until it finishes",
			},
		}, watchFlags()...),
		Action: r.Upload,
	}
}

// watchCommand follows a task's status until it finishes
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow a task's status over websocket, falling back to polling",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags:  watchFlags(),
		Action: r.Watch,
	}
}

// statusCommand fetches a single snapshot
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current status of a task",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags: append(formatFlags("text"),
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Save the snapshot to a file instead of printing it",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: {task_id}_status.{ext})",
			},
		),
		Action: r.Status,
	}
}

// downloadCommand fetches artifacts of a completed task
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download the artifacts of a completed task",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Output directory (default: [download] dir)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Only download one artifact type: excel or log",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the download links in the browser instead",
			},
		},
		Action: r.Download,
	}
}

// cleanupCommand deletes a remote task
func cleanupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "cleanup",
		Aliases: []string{"rm"},
		Usage:   "Delete a task and its artifacts from the processor",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Action: r.Cleanup,
	}
}

// historyCommand reads the local upload history
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Local record of uploads and their outcomes",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded uploads, newest first",
				Flags: append(formatFlags("text"),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tasks with this status",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries to return",
						Value: 20,
					},
				),
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show the recorded outcome of one task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task"},
				},
				Flags:  formatFlags("text"),
				Action: r.HistoryShow,
			},
		},
	}
}

// healthCommand checks the processor
func healthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the processor is reachable",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Health,
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to the processor",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the raw response",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "delete",
				Usage: "Direct DELETE, prints the raw response",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Action: r.APIDelete,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml populated with defaults",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the history database and run migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand runs the local mock processor
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run a local mock report processor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (default: [mock] host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (default: [mock] port)",
			},
			&cli.DurationFlag{
				Name:  "step-delay",
				Usage: "Delay between simulated processing steps (default: [mock] step_delay)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive TUI; uploads FILE when given",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Action: r.TUI,
	}
}
