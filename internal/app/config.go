package app

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Notification modes: push fans events out over websockets, poll leaves
// clients to hit the timer/snapshot endpoints.
const (
	NotifyPush = "push"
	NotifyPoll = "poll"
)

// ServerConfig defines how the file-drop backend should run. TTL, sweep
// cadence and notification mode are configuration, not architecture.
type ServerConfig struct {
	Addr           string        `envconfig:"PORTAL_ADDR" default:":8080"`
	DBPath         string        `envconfig:"PORTAL_DB_PATH"`
	UploadDir      string        `envconfig:"PORTAL_UPLOAD_DIR"`
	RoomTTL        time.Duration `envconfig:"PORTAL_ROOM_TTL" default:"30m"`
	SweepInterval  time.Duration `envconfig:"PORTAL_SWEEP_INTERVAL" default:"60s"`
	MaxUploadBytes int64         `envconfig:"PORTAL_MAX_UPLOAD_BYTES" default:"104857600"`
	NotifyMode     string        `envconfig:"PORTAL_NOTIFY_MODE" default:"push"`
	SessionTTL     time.Duration `envconfig:"PORTAL_SESSION_TTL" default:"168h"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	RoomCode  string
}

// LoadServerConfig reads the PORTAL_* environment into a ServerConfig.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("PORTAL_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("PORTAL_DATA_DIR"); env != "" {
		return filepath.Join(env, "fileportal.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "fileportal", "fileportal.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Fileportal", "fileportal.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Fileportal", "fileportal.db")
		}
		return filepath.Join(home, ".local", "share", "fileportal", "fileportal.db")
	}
	return filepath.Join(".", ".fileportal", "fileportal.db")
}

// DefaultUploadDir puts blobs under the system temp dir; rooms are ephemeral
// and their files are too.
func DefaultUploadDir() string {
	if env := os.Getenv("PORTAL_UPLOAD_DIR"); env != "" {
		return env
	}
	return filepath.Join(os.TempDir(), "fileportal", "uploads")
}
