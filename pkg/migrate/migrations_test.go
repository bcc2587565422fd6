package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const migrationsDir = "migrations"

func TestMigrationFilesAreWellFormed(t *testing.T) {
	if err := ValidateDir(migrationsDir); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEveryTableHasAMigration(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	var all strings.Builder
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(migrationsDir, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		all.Write(b)
	}

	text := all.String()
	for _, table := range []string{"licenses", "activations", "revocation_entries", "validation_logs", "plans"} {
		if !strings.Contains(text, "CREATE TABLE "+table) {
			t.Errorf("no CREATE TABLE for %s", table)
		}
	}

	// The seat ledger depends on this constraint to stop duplicate claims.
	if !strings.Contains(text, "UNIQUE KEY idx_activations_license_device (license_id, device_fingerprint)") {
		t.Error("activations is missing the unique (license_id, device_fingerprint) key")
	}
}
