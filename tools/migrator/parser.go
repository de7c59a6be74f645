package migrator

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version       int
	Name          string
	UpSQL         string
	NoTransaction bool
	Dependencies  []int
}

var (
	filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_-]+)\.sql$`)
	upMarkerRegex = regexp.MustCompile(`^--\s*\+migrate\s+Up(\s+notransaction)?\s*$`)
	dependsRegex  = regexp.MustCompile(`^--\s*\+migrate\s+Depends:\s*(.+)$`)
)

// ParseMigration parses the content of a migration named NNN_name.sql.
func ParseMigration(filename string, content []byte) (*Migration, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("invalid migration filename format: %s (expected NNN_name.sql)", filename)
	}

	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid version number in filename: %s", matches[1])
	}

	m := &Migration{Version: version, Name: matches[2]}

	lines := strings.Split(string(content), "\n")
	upLine := -1
	for i, line := range lines {
		if sub := upMarkerRegex.FindStringSubmatch(line); sub != nil {
			upLine = i
			m.NoTransaction = strings.TrimSpace(sub[1]) == "notransaction"
			break
		}
	}
	if upLine < 0 {
		return nil, fmt.Errorf("missing '-- +migrate Up' marker in migration file: %s", filename)
	}

	// Directives may only appear between the Up marker and the first statement
	body := lines[upLine+1:]
	start := len(body)
	for i, raw := range body {
		line := strings.TrimSpace(raw)
		if sub := dependsRegex.FindStringSubmatch(line); sub != nil {
			deps, err := parseDependencies(sub[1], filename)
			if err != nil {
				return nil, err
			}
			m.Dependencies = append(m.Dependencies, deps...)
			continue
		}
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		start = i
		break
	}

	m.UpSQL = strings.TrimSpace(strings.Join(body[start:], "\n"))
	if m.UpSQL == "" {
		return nil, fmt.Errorf("migration file contains no SQL statements: %s", filename)
	}

	return m, nil
}

func parseDependencies(list, filename string) ([]int, error) {
	fields := strings.Fields(list)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty dependency list in migration file: %s", filename)
	}

	deps := make([]int, 0, len(fields))
	for _, f := range fields {
		dep, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency version '%s' in migration file: %s", f, filename)
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// LoadMigrations reads every *.sql file in the root of fsys and returns the
// migrations sorted by version. Duplicate versions are rejected.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		m, err := ParseMigration(entry.Name(), content)
		if err != nil {
			return nil, err
		}

		if prev, ok := seen[m.Version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", m.Version, prev, entry.Name())
		}
		seen[m.Version] = entry.Name()
		migrations = append(migrations, *m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}
