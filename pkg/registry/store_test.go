//go:build integration

package registry

import (
	"testing"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}

func TestNew(t *testing.T) {
	t.Run("default config uses sqlite", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		if config.Type != DatabaseTypeSQLite {
			t.Errorf("expected SQLite, got %s", config.Type)
		}
	})

	t.Run("invalid config returns error", func(t *testing.T) {
		_, err := New(&Config{Type: "invalid"})
		if err == nil {
			t.Error("expected error for invalid config")
		}
	})
}

func TestGORMStore(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	runStoreSuite(t, store)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &PostgresConfig{
		Host:     "db.internal",
		Port:     5432,
		Database: "tenantd",
		User:     "tenantd",
		Password: "secret",
		SSLMode:  "require",
	}
	want := "host=db.internal port=5432 user=tenantd password=secret dbname=tenantd sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("unexpected DSN %q", got)
	}
}
