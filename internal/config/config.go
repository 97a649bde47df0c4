package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvAPIKey holds the ElevenLabs credential.
const EnvAPIKey = "ELEVENLABS_API_KEY"

// Config is the daemon's process-level configuration. The voice behaviour
// itself comes from the voice config file, see Manager.
type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Host struct {
		URL        string
		ProjectDir string
		GlobalDir  string
	}
	Auth struct {
		TokenSecret   string
		TokenSkewSecs int
	}
	Eleven struct {
		APIKey  string
		BaseURL string
	}
	Player struct {
		TempDir string
	}
	Watch bool
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 7766)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("host.url", "http://127.0.0.1:4096")
	v.SetDefault("host.project_dir", ".")
	v.SetDefault("host.global_dir", defaultGlobalDir())
	v.SetDefault("auth.token_skew_secs", 60)
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	v.SetDefault("player.temp_dir", "/tmp")
	v.SetDefault("watch", true)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("host.url", "VOICEBRIDGE_HOST_URL")
	v.BindEnv("host.project_dir", "VOICEBRIDGE_PROJECT_DIR")
	v.BindEnv("host.global_dir", "VOICEBRIDGE_GLOBAL_DIR")

	v.BindEnv("auth.token_secret", "VOICEBRIDGE_TOKEN_SECRET")
	v.BindEnv("auth.token_skew_secs", "VOICEBRIDGE_TOKEN_SKEW_SECS")

	v.BindEnv("elevenlabs.api_key", EnvAPIKey)
	v.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")

	v.BindEnv("player.temp_dir", "TMPDIR")
	v.BindEnv("watch", "VOICEBRIDGE_WATCH")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Host.URL = strings.TrimRight(v.GetString("host.url"), "/")
	c.Host.ProjectDir = v.GetString("host.project_dir")
	c.Host.GlobalDir = v.GetString("host.global_dir")

	c.Auth.TokenSecret = v.GetString("auth.token_secret")
	c.Auth.TokenSkewSecs = v.GetInt("auth.token_skew_secs")

	c.Eleven.APIKey = v.GetString("elevenlabs.api_key")
	c.Eleven.BaseURL = strings.TrimRight(v.GetString("elevenlabs.base_url"), "/")

	c.Player.TempDir = v.GetString("player.temp_dir")
	c.Watch = v.GetBool("watch")

	return c
}

// APIKey reads the ElevenLabs credential from the environment on every call.
func APIKey() string { return os.Getenv(EnvAPIKey) }

// defaultGlobalDir is $XDG_CONFIG_HOME/opencode, falling back to
// ~/.config/opencode.
func defaultGlobalDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "opencode")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "opencode")
}

func toString(v any) string { return fmt.Sprint(v) }
