package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("ParsesTOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `
[credentials.lastfm]
api_key = "key123"
secret = "sec456"
session_key = "sess"
user = "listener"

[credentials.listenbrainz]
token = "tok"

[database]
path = "listens.sqlite3"
max_open_conns = 1
max_idle_conns = 1
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}

		if config.Credentials.LastFM.APIKey != "key123" {
			t.Errorf("api_key = %q, want key123", config.Credentials.LastFM.APIKey)
		}
		if config.Credentials.ListenBrainz.Token != "tok" {
			t.Errorf("token = %q, want tok", config.Credentials.ListenBrainz.Token)
		}
		if config.Database.Path != "listens.sqlite3" {
			t.Errorf("database path = %q, want listens.sqlite3", config.Database.Path)
		}
	})

	t.Run("MissingFileFails", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})

	t.Run("EnvironmentOverridesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `
[credentials.lastfm]
api_key = "from-file"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		t.Setenv("LAST_FM_API_KEY", "from-env")
		t.Setenv("LISTENBRAINZ_USER_TOKEN", "env-token")

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}

		if config.Credentials.LastFM.APIKey != "from-env" {
			t.Errorf("api_key = %q, want from-env", config.Credentials.LastFM.APIKey)
		}
		if config.Credentials.ListenBrainz.Token != "env-token" {
			t.Errorf("token = %q, want env-token", config.Credentials.ListenBrainz.Token)
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Database.Path == "" {
		t.Error("default config should set a database path")
	}
	if config.Database.MaxOpenConns < 1 {
		t.Errorf("max open conns = %d, want at least 1", config.Database.MaxOpenConns)
	}
}

func TestCreateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := CreateConfigFile(path); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("created config does not parse: %v", err)
	}

	if err := CreateConfigFile(path); err == nil {
		t.Fatal("expected error when config file already exists")
	}
}
