package database

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"
)

// useMigrations swaps the migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = fsys, dir
	t.Cleanup(func() { MigrationsFS, MigrationsDir = origFS, origDir })
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query error = %v", err)
	}
	return n == 1
}

func appliedVersions(t *testing.T, db *DB) []string {
	t.Helper()
	applied, _, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	out := make([]string, len(applied))
	for i, r := range applied {
		out[i] = r.Version
		if r.AppliedAt.IsZero() {
			t.Errorf("migration %s has no applied_at", r.Version)
		}
	}
	return out
}

func TestMigrate_UpAndDown(t *testing.T) {
	useMigrations(t, os.DirFS("testdata"), ".")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if got := appliedVersions(t, db); len(got) != 2 || got[0] != "20260101_000000" || got[1] != "20260102_000000" {
		t.Fatalf("applied = %v, want both test migrations in order", got)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_devices (id, ip, position) VALUES ('a', '10.0.0.2', 3)"); err != nil {
		t.Fatalf("insert with position error = %v", err)
	}

	// Newest first: the column goes, the table stays.
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_devices (id, ip, position) VALUES ('b', '10.0.0.3', 4)"); err == nil {
		t.Error("position column should be gone after one rollback")
	}
	if got := appliedVersions(t, db); len(got) != 1 {
		t.Fatalf("applied after one rollback = %v", got)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_devices") {
		t.Error("test_devices should be dropped")
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_StopsAtFailure(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"m/20260101_000000_first.up.sql":  {Data: []byte("CREATE TABLE first (id TEXT)")},
		"m/20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE broken (")},
		"m/20260103_000000_third.up.sql":  {Data: []byte("CREATE TABLE third (id TEXT)")},
	}, "m")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on the broken migration")
	}
	if !tableExists(t, db, "first") || tableExists(t, db, "broken") || tableExists(t, db, "third") {
		t.Error("only the migration before the failure should be committed")
	}

	_, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 2 || pending[0].Name != "broken" {
		t.Errorf("pending = %+v, want broken then third", pending)
	}
}

func TestMigrateDown_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "no down file",
			fsys: fstest.MapFS{"20260101_000000_one.up.sql": {Data: []byte("CREATE TABLE one (id TEXT)")}},
		},
		{
			name: "file removed after apply",
			fsys: fstest.MapFS{"20260101_000000_one.up.sql": {Data: []byte("CREATE TABLE one (id TEXT)")}},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useMigrations(t, tt.fsys, ".")
			db := openTestDB(t)
			ctx := context.Background()

			if err := db.Migrate(ctx); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			if i == 1 {
				MigrationsFS = fstest.MapFS{}
			}
			if err := db.MigrateDown(ctx); err == nil {
				t.Error("MigrateDown() should fail")
			}
			if !tableExists(t, db, "one") {
				t.Error("failed rollback must leave the table in place")
			}
		})
	}
}

func TestMigrate_NoSource(t *testing.T) {
	useMigrations(t, nil, ".")
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() without migrations error = %v", err)
	}
	if got := appliedVersions(t, db); len(got) != 0 {
		t.Errorf("applied = %v, want none", got)
	}
}

func TestLoadMigrations_IgnoresStrayFiles(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_devices.up.sql":   {Data: []byte("up")},
		"20260101_000000_devices.down.sql": {Data: []byte("down")},
		"README.md":                        {Data: []byte("notes")},
		"seed.sql":                         {Data: []byte("INSERT")},
		"sub/20260109_000000_x.up.sql":     {Data: []byte("nested")},
	}, ".")

	got, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loadMigrations() = %+v, want one migration", got)
	}
	if got[0].Name != "devices" || got[0].UpSQL != "up" || got[0].DownSQL != "down" {
		t.Errorf("migration = %+v", got[0])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20260118_120000_devices.up.sql", "20260118_120000", true, true},
		{"20260118_120000_devices.down.sql", "20260118_120000", false, true},
		{"20260118_120000.up.sql", "20260118_120000", true, true},
		{"readme.txt", "", false, false},
		{"20260118_120000_devices.sql", "", false, false},
		{"invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk || version != tt.wantVersion || isUp != tt.wantIsUp {
				t.Errorf("parseMigrationFilename(%q) = %q, %v, %v; want %q, %v, %v",
					tt.filename, version, isUp, ok, tt.wantVersion, tt.wantIsUp, tt.wantOk)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	for filename, want := range map[string]string{
		"20260118_120000_devices.up.sql":                "devices",
		"20260118_120000_devices.down.sql":              "devices",
		"20260118_120000_add_enabled_to_devices.up.sql": "add_enabled_to_devices",
	} {
		if got := extractMigrationName(filename); got != want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", filename, got, want)
		}
	}
}
