package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentstation/leadsync/pkg/constants"
)

// TestLoadConfig verifies defaults.
func TestLoadConfig(t *testing.T) {
	isolate(t)

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.ListenHost != constants.DefaultListenHost || config.ListenPort != constants.DefaultListenPort {
		t.Errorf("listen = %s:%d", config.ListenHost, config.ListenPort)
	}
	if config.StoreBackend != "sqlite" {
		t.Errorf("StoreBackend = %s, want sqlite", config.StoreBackend)
	}
	if config.Topic != constants.DefaultTopic {
		t.Errorf("Topic = %s", config.Topic)
	}
	if config.LogFormat == "" {
		t.Error("LogFormat not set to default")
	}
}

// TestConfig_EnvironmentVariables verifies LEADSYNC_ variables are read.
func TestConfig_EnvironmentVariables(t *testing.T) {
	isolate(t)
	t.Setenv("LEADSYNC_API_URL", "https://api.example.test")
	t.Setenv("LEADSYNC_LISTEN_PORT", "9000")
	t.Setenv("LEADSYNC_SYNC_INTERVAL", "5m")
	t.Setenv("LEADSYNC_CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("LEADSYNC_FORMAT", "yaml")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.APIURL != "https://api.example.test" {
		t.Errorf("APIURL = %s", config.APIURL)
	}
	if config.ListenPort != 9000 {
		t.Errorf("ListenPort = %d, want 9000", config.ListenPort)
	}
	if config.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", config.SyncInterval)
	}
	if len(config.CORSOrigins) != 2 || config.CORSOrigins[1] != "https://b.test" {
		t.Errorf("CORSOrigins = %v", config.CORSOrigins)
	}
	if config.Format != "yaml" {
		t.Errorf("Format = %s, want yaml", config.Format)
	}
}

// TestConfig_File verifies an explicit config file is read and env wins over it.
func TestConfig_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "leadsync.yaml")
	body := "api_url: https://file.test\nupstream_url: http://localhost:3000\nnetwork_only:\n  - /api/\n  - /auth/\nrate_limit: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADSYNC_RATE_LIMIT", "20")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.APIURL != "https://file.test" || config.UpstreamURL != "http://localhost:3000" {
		t.Errorf("urls = %s %s", config.APIURL, config.UpstreamURL)
	}
	if len(config.NetworkOnly) != 2 {
		t.Errorf("NetworkOnly = %v", config.NetworkOnly)
	}
	if config.RateLimit != 20 {
		t.Errorf("RateLimit = %d, want 20 from env", config.RateLimit)
	}
	if config.ConfigFile != path {
		t.Errorf("ConfigFile = %s", config.ConfigFile)
	}
}

// TestConfig_MissingExplicitFile verifies an explicit path must exist.
func TestConfig_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	if _, err := LoadConfig(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("LoadConfig() succeeded with a missing explicit file")
	}
}

// TestConfig_Validate verifies invalid values are rejected.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"LEADSYNC_STORE_BACKEND": "mysql"}},
		{"port out of range", map[string]string{"LEADSYNC_LISTEN_PORT": "70000"}},
		{"negative rate limit", map[string]string{"LEADSYNC_RATE_LIMIT": "-1"}},
		{"negative interval", map[string]string{"LEADSYNC_SYNC_INTERVAL": "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(""); err == nil {
				t.Error("LoadConfig() accepted invalid config")
			}
		})
	}
}

// TestConfig_UpdateFromFlags verifies flag precedence.
func TestConfig_UpdateFromFlags(t *testing.T) {
	c := &Config{Format: "table", LogLevel: "error"}
	c.UpdateFromFlags(true, false, "json", "")
	if c.Format != "json" {
		t.Errorf("Format = %s, want json", c.Format)
	}
	if c.LogLevel != "" || !c.Verbose {
		t.Errorf("-v did not outrank env level: %+v", c)
	}

	c.UpdateFromFlags(false, false, "", "trace")
	if c.LogLevel != "trace" || c.Format != "json" {
		t.Errorf("explicit level not applied: %+v", c)
	}
}
