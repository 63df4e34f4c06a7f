package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	LastFM       LastFMConfig       `toml:"lastfm"`
	ListenBrainz ListenBrainzConfig `toml:"listenbrainz"`
}

// LastFMConfig contains Last.fm API credentials.
//
// An API key and shared secret can be created at
// https://www.last.fm/api/account/create. The session key is printed by
// `scrobble lastfm auth` and only needed for scrobbling and history import.
type LastFMConfig struct {
	APIKey     string `toml:"api_key"`
	Secret     string `toml:"secret"`
	SessionKey string `toml:"session_key"`
	User       string `toml:"user"`
}

// ListenBrainzConfig contains the ListenBrainz user token,
// obtainable at https://listenbrainz.org/profile/.
type ListenBrainzConfig struct {
	Token string `toml:"token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path,
// then applies environment variable overrides via [ApplyEnv].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded
// example config, with environment variable overrides applied.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.ApplyEnv()
	return &config
}

// ApplyEnv overrides credential fields from the environment. The variables match
// the ones the original scrobbling scripts expected, so existing systemd units
// keep working without a config file.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key  string
		dest *string
	}{
		{"LAST_FM_API_KEY", &c.Credentials.LastFM.APIKey},
		{"LAST_FM_SECRET", &c.Credentials.LastFM.Secret},
		{"LAST_FM_SESSION_KEY", &c.Credentials.LastFM.SessionKey},
		{"LAST_FM_USER", &c.Credentials.LastFM.User},
		{"LISTENBRAINZ_USER_TOKEN", &c.Credentials.ListenBrainz.Token},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dest = v
		}
	}
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
