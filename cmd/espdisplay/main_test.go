package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ESPDISPLAY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails validation before touching
// the network.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("ESPDISPLAY_CONFIG", writeConfig(t, `
database:
  path: ""
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
logging:
  level: error
  format: text
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_BrokerUnreachable verifies run gives up when the broker refuses
// the connection.
func TestRun_BrokerUnreachable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ESPDISPLAY_CONFIG", writeConfig(t, `
database:
  path: "`+filepath.Join(dir, "test.db")+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
logging:
  level: error
  format: text
`))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a broker")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("ESPDISPLAY_CONFIG", "")
		if path := getConfigPath(); path != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		expected := "/custom/path/config.yaml"
		t.Setenv("ESPDISPLAY_CONFIG", expected)
		if path := getConfigPath(); path != expected {
			t.Errorf("getConfigPath() = %q, want %q", path, expected)
		}
	})
}
