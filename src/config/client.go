package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Client settings keys, shared by the ledger CLI's flags, config file and
// LEDGER_* environment variables.
const (
	KeyProxyURL       = "proxy.url"
	KeyDemoKey        = "proxy.demo_key"
	KeyDatabasePath   = "database.path"
	KeyPrefsPath      = "prefs.path"
	KeyLogLevel       = "logging.level"
	KeyLogFormat      = "logging.format"
	KeyMaxAttempts    = "retry.max_attempts"
	KeyRetryBaseDelay = "retry.base_delay"
)

type ClientConfig struct {
	ProxyURL     string
	DemoKey      string
	DatabasePath string
	PrefsPath    string
	LogLevel     string
	LogFormat    string
	MaxAttempts  int
	BaseDelay    time.Duration
}

// SetClientDefaults registers defaults on v.
func SetClientDefaults(v *viper.Viper) {
	v.SetDefault(KeyProxyURL, "http://localhost:3000")
	v.SetDefault(KeyDatabasePath, "$HOME/.local/share/ledger/ledger.db")
	v.SetDefault(KeyPrefsPath, "$HOME/.config/ledger/prefs.yaml")
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyMaxAttempts, 10)
	v.SetDefault(KeyRetryBaseDelay, time.Second)
}

func LoadClient(v *viper.Viper) ClientConfig {
	return ClientConfig{
		ProxyURL:     v.GetString(KeyProxyURL),
		DemoKey:      v.GetString(KeyDemoKey),
		DatabasePath: ExpandPath(v.GetString(KeyDatabasePath)),
		PrefsPath:    ExpandPath(v.GetString(KeyPrefsPath)),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFormat:    v.GetString(KeyLogFormat),
		MaxAttempts:  v.GetInt(KeyMaxAttempts),
		BaseDelay:    v.GetDuration(KeyRetryBaseDelay),
	}
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
