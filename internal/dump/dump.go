// Package dump writes a flat SQL snapshot of the site database and replays
// such snapshots. The dump is a plain statement stream: for every table a
// DROP TABLE IF EXISTS, the original CREATE TABLE, then one INSERT per row.
package dump

import (
	"bufio"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// WriteFile dumps every user table of db to a SQL file at outPath.
// It fails if the database contains no tables.
func WriteFile(db *sql.DB, outPath string) error {
	tables, err := listTables(db)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables found to dump")
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "-- site database dump\n")
	for _, t := range tables {
		if err := dumpTable(db, w, t); err != nil {
			return fmt.Errorf("dump table %s: %w", t.name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush dump file: %w", err)
	}
	return f.Close()
}

type table struct {
	name      string
	createSQL string
}

func listTables(db *sql.DB) ([]table, error) {
	rows, err := db.Query(
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []table
	for rows.Next() {
		var t table
		var createSQL sql.NullString
		if err := rows.Scan(&t.name, &createSQL); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		t.createSQL = createSQL.String
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func dumpTable(db *sql.DB, w *bufio.Writer, t table) error {
	fmt.Fprintf(w, "\nDROP TABLE IF EXISTS %s;\n", quoteIdent(t.name))
	fmt.Fprintf(w, "%s;\n", strings.TrimRight(t.createSQL, "; \n"))

	rows, err := db.Query("SELECT * FROM " + quoteIdent(t.name))
	if err != nil {
		return fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	colList := make([]string, len(cols))
	for i, c := range cols {
		colList[i] = quoteIdent(c)
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		lits := make([]string, len(values))
		for i, v := range values {
			lits[i] = literal(v)
		}
		fmt.Fprintf(w, "INSERT INTO %s (%s) VALUES (%s);\n",
			quoteIdent(t.name), strings.Join(colList, ", "), strings.Join(lits, ", "))
	}
	return rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// literal renders a scanned value as a SQL literal, NULL-aware and with
// single quotes doubled in text values.
func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		return fmt.Sprintf("%g", x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []byte:
		return quoteText(string(x))
	case string:
		return quoteText(x)
	default:
		return quoteText(fmt.Sprint(x))
	}
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Replay executes a dump file against db statement by statement. A failing
// statement is logged and skipped; it does not abort the replay. Returns the
// number of statements executed successfully.
func Replay(db *sql.DB, dumpPath string, logger *slog.Logger) (int, error) {
	data, err := os.ReadFile(dumpPath)
	if err != nil {
		return 0, fmt.Errorf("read dump file: %w", err)
	}

	executed := 0
	for _, stmt := range SplitStatements(string(data)) {
		if _, err := db.Exec(stmt); err != nil {
			logger.Warn("skipping failed statement", "error", err, "statement", truncate(stmt, 120))
			continue
		}
		executed++
	}
	return executed, nil
}

// SplitStatements splits a dump into individual statements on terminating
// semicolons, dropping comment lines. Semicolons inside quoted text are
// handled by tracking the quote state.
func SplitStatements(script string) []string {
	var stmts []string
	var b strings.Builder
	inQuote := false

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inQuote && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		for i := 0; i < len(line); i++ {
			c := line[i]
			b.WriteByte(c)
			if c == '\'' {
				inQuote = !inQuote
				continue
			}
			if c == ';' && !inQuote {
				stmt := strings.TrimSpace(strings.TrimSuffix(b.String(), ";"))
				b.Reset()
				if stmt != "" {
					stmts = append(stmts, stmt)
				}
			}
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
