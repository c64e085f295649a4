package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/lumi/clients/console"
	"github.com/dohr-michael/lumi/clients/tui"
	"github.com/dohr-michael/lumi/internal/backend"
	"github.com/dohr-michael/lumi/internal/config"
	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/gateway"
	"github.com/dohr-michael/lumi/internal/heartbeat"
	"github.com/dohr-michael/lumi/internal/interaction"
	"github.com/dohr-michael/lumi/internal/sessions"
	"github.com/dohr-michael/lumi/internal/storage"
)

// NewShellCommand returns the shell subcommand.
func NewShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Backend base URL (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Line mode instead of the TUI (default when stdin is not a terminal)",
			},
			&cli.BoolFlag{
				Name:  "no-gateway",
				Usage: "Do not start the local renderer gateway",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Gateway port (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-persist",
				Usage: "Do not write the transcript to disk",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload when the config or .env file changes",
			},
		},
		Action: runShell,
	}
}

func runShell(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config
	if cmd.IsSet("backend") {
		cfg.Backend.BaseURL = cmd.String("backend")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}
	if cmd.Bool("no-gateway") {
		off := false
		cfg.Gateway.Enabled = &off
	}
	if cmd.Bool("no-persist") {
		off := false
		cfg.Sessions.Persist = &off
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	plain := cmd.Bool("plain") || !term.IsTerminal(int(os.Stdin.Fd()))
	if !plain {
		// The TUI owns the terminal.
		logFile, err := openLogFile(config.LogPath())
		if err != nil {
			return err
		}
		defer logFile.Close()
		setLogger(logFile, cmd.Bool("debug"))
	}

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// Backend client, reconfigured on /reload
	client := backend.NewClient(cfg.Backend)
	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	if cmd.IsSet("backend") {
		reloader.Pin(func(c *config.Config) { c.Backend.BaseURL = cmd.String("backend") })
	}
	reloader.OnReload(func(c *config.Config) { client.Reconfigure(c.Backend) })
	if !cmd.Bool("no-watch") {
		if err := reloader.Watch(ctx, config.DefaultWatchDebounce); err != nil {
			slog.Warn("config watch disabled", "error", err)
		}
	}

	// Session store and recorders attach before the controller announces
	// the session.
	sessionID := sessions.NewID()
	var store sessions.Store
	if cfg.Sessions.ShouldPersist() {
		fs := sessions.NewFileStore(cfg.Sessions.Dir)
		sess, err := fs.Create(cfg.Backend.BaseURL)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
		store = fs

		recorder := sessions.NewRecorder(fs, sessionID)
		recorder.Attach(bus)
		defer recorder.Detach()

		stats := storage.NewRequestStats(bus, fs)
		defer stats.Close()
	}

	eventLog := storage.NewEventLogger(cfg.Events.LogDir, bus)
	defer eventLog.Close()

	ctrl, err := interaction.New(interaction.Options{
		Dispatcher:   client,
		Bus:          bus,
		SessionID:    sessionID,
		ListenWindow: cfg.Voice.ListenWindow.Duration(),
		Welcome:      true,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctrl.Close()
		// Flush session.closed to the recorder and event log before they
		// detach.
		bus.Close()
	}()
	slog.Info("session started", "session_id", sessionID, "backend", cfg.Backend.BaseURL)

	// Gateway server
	var addr string
	if cfg.Gateway.IsEnabled() {
		server := gateway.NewServer(bus, ctrl, store, cfg.Gateway)
		ln, err := server.Listen()
		if err != nil {
			return err
		}
		addr = server.Addr()
		go func() {
			if err := server.Serve(ln); err != nil {
				slog.Error("gateway stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	hb := heartbeat.NewWriter(config.HeartbeatPath(), heartbeat.Info{
		Addr:      addr,
		SessionID: sessionID,
		Backend:   client.BaseURL(),
	})
	hb.Start()
	defer hb.Stop()
	reloader.OnReload(func(c *config.Config) {
		hb.Update(func(i *heartbeat.Info) { i.Backend = c.Backend.BaseURL })
	})

	if plain {
		c, err := console.New(console.Options{
			Session: ctrl,
			Bus:     bus,
			In:      os.Stdin,
			Out:     os.Stdout,
			Welcome: cfg.UI.Welcome,
		})
		if err != nil {
			return err
		}
		return c.Run(ctx)
	}

	return tui.Run(ctx, tui.Options{
		Session:    ctrl,
		Bus:        bus,
		Welcome:    cfg.UI.Welcome,
		Markdown:   cfg.UI.RenderMarkdown(),
		Backend:    client.BaseURL(),
		Extensions: cfg.UI.DocumentTypes,
		Reload: func() (string, error) {
			if err := reloader.Reload(); err != nil {
				return "", err
			}
			return client.BaseURL(), nil
		},
	})
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
