package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lumi/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "lumi",
		Usage: "Desktop voice and text assistant shell",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setLogger(os.Stderr, cmd.Bool("debug"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewShellCommand(),
			NewSendCommand(),
			NewStatusCommand(),
			NewSessionsCommand(),
			NewDevBackendCommand(),
		},
		DefaultCommand: "shell",
	}
}

func setLogger(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig loads the --config file, falling back to defaults when it
// does not exist.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "path", path, "backend", cfg.Backend.BaseURL)
	return cfg, nil
}
