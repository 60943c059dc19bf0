package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS embeds the token, milestone and ledger schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the observation and cycle run schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// migration is one embedded SQL file ready to apply.
type migration struct {
	name       string
	statements []string
}

// sqlFiles lists the .sql files of dir in lexical order.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// load reads every migration of dir. With split, each file is cut into
// single statements; otherwise a file is one statement. Blank files are skipped.
func load(fsys fs.FS, dir string, split bool) ([]migration, error) {
	files, err := sqlFiles(fsys, dir)
	if err != nil {
		return nil, err
	}

	out := make([]migration, 0, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		body := string(data)
		if strings.TrimSpace(body) == "" {
			continue
		}

		m := migration{name: name, statements: []string{body}}
		if split {
			if m.statements, err = splitStatements(body); err != nil {
				return nil, fmt.Errorf("split migration %s: %w", name, err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// splitStatements cuts SQL at top-level semicolons. Single-quoted literals
// (with '' escapes) and -- comments are understood; comments are dropped.
func splitStatements(sql string) ([]string, error) {
	var (
		stmts   []string
		cur     strings.Builder
		inQuote bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inQuote:
			cur.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
					continue
				}
				inQuote = false
			}
		case ch == '\'':
			inQuote = true
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return stmts, nil
}
