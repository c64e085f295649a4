package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lumi/clients/console"
	wsclient "github.com/dohr-michael/lumi/clients/ws"
	"github.com/dohr-michael/lumi/internal/config"
	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/heartbeat"
	"github.com/dohr-michael/lumi/internal/interaction"
	"github.com/dohr-michael/lumi/internal/transcript"
)

var errNoShell = errors.New("no running lumi shell with a gateway (start one with `lumi shell`)")

// NewSendCommand returns the send subcommand, which drives the running
// shell through its gateway.
func NewSendCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Gateway address (default: from the heartbeat of the running shell)",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Return as soon as the action is accepted",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Response timeout in seconds",
			Value: 120,
		},
	}

	return &cli.Command{
		Name:  "send",
		Usage: "Send an action to the running shell",
		Commands: []*cli.Command{
			{
				Name:      "text",
				Usage:     "Submit text as if typed",
				ArgsUsage: "<text>",
				Flags:     flags,
				Action: sendAction(func(c *wsclient.Client, args []string) (interaction.Outcome, error) {
					if len(args) == 0 {
						return interaction.Ignored, fmt.Errorf("usage: lumi send text <text>")
					}
					return c.SubmitText(strings.Join(args, " "))
				}),
			},
			{
				Name:   "orb",
				Usage:  "Activate the voice orb",
				Flags:  flags,
				Action: sendAction(func(c *wsclient.Client, _ []string) (interaction.Outcome, error) { return c.ActivateOrb() }),
			},
			{
				Name:      "file",
				Usage:     "Upload a document",
				ArgsUsage: "<path>",
				Flags:     flags,
				Action: sendAction(func(c *wsclient.Client, args []string) (interaction.Outcome, error) {
					if len(args) == 0 {
						return interaction.Ignored, fmt.Errorf("usage: lumi send file <path>")
					}
					// The shell resolves the path, which may run in another directory.
					path, err := filepath.Abs(args[0])
					if err != nil {
						return interaction.Ignored, err
					}
					return c.SelectFile(path)
				}),
			},
			{
				Name:   "clear",
				Usage:  "Close the loaded document",
				Flags:  flags,
				Action: sendAction(func(c *wsclient.Client, _ []string) (interaction.Outcome, error) { return c.ClearDocument() }),
			},
		},
	}
}

func sendAction(do func(*wsclient.Client, []string) (interaction.Outcome, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		addr := cmd.String("addr")
		if addr == "" {
			var err error
			if addr, err = shellAddr(); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(ctx, time.Duration(cmd.Int("timeout"))*time.Second)
		defer cancel()

		client, err := wsclient.Dial(ctx, wsclient.URL(addr))
		if err != nil {
			return fmt.Errorf("connect to shell: %w", err)
		}
		defer client.Close()

		if !cmd.Bool("no-wait") {
			err := client.Subscribe(events.EventTranscriptAppended, events.EventSessionState, events.EventSessionClosed)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
		}

		outcome, err := do(client, cmd.Args().Slice())
		if err != nil {
			return err
		}
		if outcome == interaction.Ignored {
			return fmt.Errorf("%s: ignored by the shell (busy, blank input or unreadable file)", cmd.Name)
		}
		if cmd.Bool("no-wait") {
			fmt.Println(outcome)
			return nil
		}

		if err := printUntilIdle(client); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("timeout waiting for the shell")
			}
			return err
		}
		return nil
	}
}

// shellAddr reads the gateway address of the running shell from its
// heartbeat.
func shellAddr() (string, error) {
	status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
	if err != nil {
		return "", err
	}
	if status != heartbeat.StatusAlive || hb.Addr == "" {
		return "", errNoShell
	}
	return hb.Addr, nil
}

// printUntilIdle prints transcript entries until the session is idle again.
// The action was accepted, so the session left Idle before any idle state
// event that follows.
func printUntilIdle(c *wsclient.Client) error {
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		switch events.EventType(f.Event) {
		case events.EventTranscriptAppended:
			var p events.MessagePayload
			if err := f.Decode(&p); err != nil || p.Placeholder {
				continue
			}
			fmt.Fprintln(os.Stdout, console.Format(transcript.Author(p.Author), p.Text))

		case events.EventSessionState:
			var p events.SessionStatePayload
			if err := f.Decode(&p); err != nil {
				continue
			}
			if p.Processing == interaction.Idle.String() {
				return nil
			}

		case events.EventSessionClosed:
			return errors.New("shell closed the session")
		}
	}
}
