package dump

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSiteDB(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT, body TEXT, views INTEGER)`,
		`CREATE TABLE options (name TEXT PRIMARY KEY, value TEXT)`,
		`INSERT INTO posts (id, title, body, views) VALUES (1, 'Hello', 'first post', 10)`,
		`INSERT INTO posts (id, title, body, views) VALUES (2, 'O''Brien''s page', NULL, 0)`,
		`INSERT INTO options (name, value) VALUES ('site_name', 'demo')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestWriteFileAndReplayRoundTrip(t *testing.T) {
	src := openTestDB(t)
	seedSiteDB(t, src)

	dumpPath := filepath.Join(t.TempDir(), "database.sql")
	if err := WriteFile(src, dumpPath); err != nil {
		t.Fatalf("write dump: %v", err)
	}

	content, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	for _, want := range []string{
		`DROP TABLE IF EXISTS "posts";`,
		`CREATE TABLE posts`,
		`'O''Brien''s page'`,
		`NULL`,
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("dump missing %q", want)
		}
	}

	dst := openTestDB(t)
	executed, err := Replay(dst, dumpPath, slog.Default())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if executed == 0 {
		t.Fatal("no statements executed")
	}

	var title string
	var body sql.NullString
	err = dst.QueryRow(`SELECT title, body FROM posts WHERE id = 2`).Scan(&title, &body)
	if err != nil {
		t.Fatalf("query restored row: %v", err)
	}
	if title != "O'Brien's page" {
		t.Errorf("title = %q", title)
	}
	if body.Valid {
		t.Error("body should have been restored as NULL")
	}

	var count int
	if err := dst.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("posts count = %d, want 2", count)
	}
}

func TestWriteFileEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	if err := WriteFile(db, filepath.Join(t.TempDir(), "out.sql")); err == nil {
		t.Fatal("expected error for database with no tables")
	}
}

func TestReplaySkipsFailingStatements(t *testing.T) {
	db := openTestDB(t)
	script := strings.Join([]string{
		"-- a comment",
		"CREATE TABLE ok (id INTEGER);",
		"INSERT INTO missing_table (id) VALUES (1);",
		"INSERT INTO ok (id) VALUES (42);",
	}, "\n")
	dumpPath := filepath.Join(t.TempDir(), "partial.sql")
	if err := os.WriteFile(dumpPath, []byte(script), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	executed, err := Replay(db, dumpPath, slog.Default())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if executed != 2 {
		t.Errorf("executed = %d, want 2", executed)
	}

	var id int
	if err := db.QueryRow(`SELECT id FROM ok`).Scan(&id); err != nil || id != 42 {
		t.Errorf("surviving insert not applied: id=%d err=%v", id, err)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"empty", "", 0},
		{"comments only", "-- one\n-- two\n", 0},
		{"two statements", "SELECT 1;\nSELECT 2;", 2},
		{"semicolon in literal", "INSERT INTO t (v) VALUES ('a;b');", 1},
		{"multiline statement", "CREATE TABLE t (\n id INTEGER\n);", 1},
		{"unterminated tail", "SELECT 1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.script)
			if len(got) != tt.want {
				t.Errorf("got %d statements, want %d: %q", len(got), tt.want, got)
			}
		})
	}
}
