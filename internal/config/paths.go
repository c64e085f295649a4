package config

import (
	"os"
	"path/filepath"
)

// Layout of the Lumi data directory:
//
//	config.jsonc     shell settings, watched for live reload
//	.env             LUMI_BACKEND_URL and other overrides
//	heartbeat.json   the running shell's pid and gateway address
//	sessions/        one directory per recorded conversation
//	logs/lumi.log    shell log while the TUI owns the terminal
//	logs/events/     one JSONL file of bus events per session

// LumiPath is the data directory, $LUMI_PATH or ~/.lumi.
func LumiPath() string {
	if v := os.Getenv("LUMI_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".lumi")
	}
	return filepath.Join(home, ".lumi")
}

// ConfigPath is the JSONC settings file: backend URL and routes, gateway,
// orb shortcut and document types.
func ConfigPath() string {
	return filepath.Join(LumiPath(), "config.jsonc")
}

// DotenvPath is loaded before the config so LUMI_BACKEND_URL can point a
// shell at another backend without editing config.jsonc.
func DotenvPath() string {
	return filepath.Join(LumiPath(), ".env")
}

// HeartbeatPath is where a running shell advertises itself to `lumi status`
// and `lumi send`.
func HeartbeatPath() string {
	return filepath.Join(LumiPath(), "heartbeat.json")
}

// LogPath receives slog output while the TUI owns the terminal.
func LogPath() string {
	return filepath.Join(LumiPath(), "logs", "lumi.log")
}

// SessionsDir holds recorded transcripts, one directory per session.
func SessionsDir() string {
	return filepath.Join(LumiPath(), "sessions")
}

// EventLogDir holds the per-session event logs read by
// `lumi sessions show --events`.
func EventLogDir() string {
	return filepath.Join(LumiPath(), "logs", "events")
}
