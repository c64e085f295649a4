package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lumi/internal/config"
	"github.com/dohr-michael/lumi/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether a lumi shell is running",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Shell: ALIVE (PID %d, uptime %s, session %s)\n", hb.PID, hb.Uptime(), hb.SessionID)
				if hb.Backend != "" {
					fmt.Printf("Backend: %s\n", hb.Backend)
				}
				if hb.Addr != "" {
					fmt.Printf("Gateway: ws://%s/api/ws\n", hb.Addr)
				} else {
					fmt.Println("Gateway: disabled")
				}
			case heartbeat.StatusStale:
				fmt.Printf("Shell: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Shell: NOT RUNNING")
			}

			return nil
		},
	}
}
