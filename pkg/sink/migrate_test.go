package sink

import (
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestNewMigrationProvider(t *testing.T) {
	// sql.Open does not connect; the provider only reads the embedded sources.
	db, err := sql.Open("pgx", "postgres://harvester@127.0.0.1:1/harvester")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	provider, err := newMigrationProvider(db)
	if err != nil {
		t.Fatalf("newMigrationProvider() error = %v", err)
	}

	sources := provider.ListSources()
	if len(sources) != 1 {
		t.Fatalf("ListSources() returned %d sources, want 1", len(sources))
	}
	if sources[0].Version != 1 {
		t.Errorf("Version = %d, want 1", sources[0].Version)
	}
}
