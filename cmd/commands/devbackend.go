package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lumi/internal/devbackend"
)

// NewDevBackendCommand returns the devbackend subcommand.
func NewDevBackendCommand() *cli.Command {
	return &cli.Command{
		Name:  "devbackend",
		Usage: "Run a stand-in reasoning backend for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Address to listen on",
				Value: "127.0.0.1:5001",
			},
			&cli.DurationFlag{
				Name:  "listen-delay",
				Usage: "Simulated microphone capture time of /listen",
				Value: 5 * time.Second,
			},
			&cli.StringFlag{
				Name:  "utterance",
				Usage: "What /listen pretends to hear (empty: nothing heard)",
				Value: "what can you do",
			},
		},
		Action: runDevBackend,
	}
}

func runDevBackend(ctx context.Context, cmd *cli.Command) error {
	backend := devbackend.New(devbackend.Options{
		ListenDelay: cmd.Duration("listen-delay"),
		Utterance:   cmd.String("utterance"),
	})

	server := &http.Server{
		Addr:              cmd.String("addr"),
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dev backend listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
