package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/lumi/clients/console"
	"github.com/dohr-michael/lumi/internal/sessions"
	"github.com/dohr-michael/lumi/internal/storage"
	"github.com/dohr-michael/lumi/internal/transcript"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect recorded sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show the transcript of a session",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json or yaml",
						Value:   "text",
					},
					&cli.BoolFlag{
						Name:  "events",
						Usage: "Also print the session's event log",
					},
				},
				Action: runSessionsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func newStore(cmd *cli.Command) (*sessions.FileStore, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	return sessions.NewFileStore(cfg.Sessions.Dir), cfg.Events.LogDir, nil
}

func runSessionsList(_ context.Context, cmd *cli.Command) error {
	store, _, err := newStore(cmd)
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODE\tMESSAGES\tREQUESTS\tUPDATED\tTITLE")
	for _, s := range list {
		title := s.Title
		if title == "" {
			title = "-"
		}
		mode := s.Mode
		if s.Document != "" {
			mode += ":" + s.Document
		}
		if mode == "" {
			mode = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			s.ID,
			s.Status,
			mode,
			s.MessageCount,
			s.Requests.Total-s.Requests.Failed,
			s.Requests.Total,
			s.UpdatedAt.Format("2006-01-02 15:04"),
			title,
		)
	}
	return w.Flush()
}

// sessionDump is the json/yaml shape of `sessions show`.
type sessionDump struct {
	Session  *sessions.Session  `json:"session" yaml:"session"`
	Messages []sessions.Message `json:"messages" yaml:"messages"`
}

func runSessionsShow(_ context.Context, cmd *cli.Command) error {
	prefix := cmd.Args().First()
	if prefix == "" {
		return fmt.Errorf("usage: lumi sessions show <session_id>")
	}

	store, logDir, err := newStore(cmd)
	if err != nil {
		return err
	}
	sessionID, err := store.Resolve(prefix)
	if err != nil {
		return err
	}

	sess, err := store.Get(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	msgs, err := store.LoadMessages(sessionID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	if err := writeSession(os.Stdout, cmd.String("format"), sessionDump{Session: sess, Messages: msgs}); err != nil {
		return err
	}

	if cmd.Bool("events") {
		evts, err := storage.ReadLog(logDir, sessionID)
		if err != nil {
			return fmt.Errorf("read event log: %w", err)
		}
		fmt.Println()
		for _, e := range evts {
			fmt.Printf("[%s] %s %v\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.Payload)
		}
	}
	return nil
}

func writeSession(w io.Writer, format string, d sessionDump) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(w, "%s  %s  %s\n", d.Session.ID, d.Session.Status, d.Session.Title)
		if len(d.Messages) == 0 {
			fmt.Fprintln(w, "No messages in this session.")
			return nil
		}
		for _, m := range d.Messages {
			fmt.Fprintf(w, "[%s] %s\n", m.Ts.Format("15:04:05"), console.Format(transcript.Author(m.Author), m.Text))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}
