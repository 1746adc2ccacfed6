package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun(t *testing.T) {
	db := openTestDB(t)

	if err := Run(db); err != nil {
		t.Fatalf("Run: %v", err)
	}

	version, err := Version(db)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}

	for _, table := range []string{"kv_store", "_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Run(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Run(db); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("migration rows = %d, want 1", count)
	}

	pending, err := Pending(db)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
}

func TestRunFS_OrderAndSkip(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"scripts/002_more.sql": {Data: []byte("INSERT INTO t (v) VALUES ('second');")},
		"scripts/001_init.sql": {Data: []byte("CREATE TABLE t (v TEXT);")},
		"scripts/README.md":    {Data: []byte("ignored")},
		"scripts/draft_x.sql":  {Data: []byte("THIS IS NOT SQL")},
	}

	if err := RunFS(db, fsys); err != nil {
		t.Fatalf("RunFS: %v", err)
	}

	var v string
	if err := db.QueryRow("SELECT v FROM t").Scan(&v); err != nil {
		t.Fatalf("query: %v", err)
	}
	if v != "second" {
		t.Errorf("v = %q, want second", v)
	}

	version, _ := Version(db)
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestRunFS_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"scripts/001_bad.sql": {Data: []byte("CREATE TABLE ok (v TEXT); SELEC nonsense;")},
	}

	if err := RunFS(db, fsys); err == nil {
		t.Fatal("expected error for invalid SQL")
	}

	version, err := Version(db)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0", version)
	}
}
