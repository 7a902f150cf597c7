package migrations_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/database"
	_ "github.com/nerrad567/knxnet-core/migrations"
)

func TestEmbeddedSchema(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "knxnet.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"knxnet_status", "knxnet_group_addresses", "knxnet_devices"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2 and 0", len(applied), len(pending))
	}

	// Every migration rolls back cleanly.
	for range applied {
		if err := db.MigrateDown(ctx); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name LIKE 'knxnet_%'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d knxnet objects left after rollback", n)
	}
}
