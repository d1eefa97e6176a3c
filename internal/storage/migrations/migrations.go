// Package migrations upgrades the database schema with the embedded SQL
// scripts. A script is named NNN_description.sql and runs exactly once.
package migrations

import (
	"cmp"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

const createTable = `CREATE TABLE IF NOT EXISTS _migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

type script struct {
	version int
	name    string
	sql     string
}

// Run applies the scripts newer than the current schema version, each in
// its own transaction.
func Run(db *sql.DB) error {
	if _, err := db.Exec(createTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	todo, err := pending(db)
	if err != nil {
		return err
	}
	for _, s := range todo {
		if err := apply(db, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.name, err)
		}
	}
	return nil
}

// Version returns the highest applied version, 0 for a fresh database.
func Version(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&v)
	return v, err
}

// Pending lists the versions Run would apply, ascending.
func Pending(db *sql.DB) ([]int, error) {
	todo, err := pending(db)
	if err != nil {
		return nil, err
	}
	versions := make([]int, len(todo))
	for i, s := range todo {
		versions[i] = s.version
	}
	return versions, nil
}

func pending(db *sql.DB) ([]script, error) {
	current, err := Version(db)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	all, err := load(FS)
	if err != nil {
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	i, _ := slices.BinarySearchFunc(all, current+1, func(s script, v int) int {
		return cmp.Compare(s.version, v)
	})
	return all[i:], nil
}

// load reads scripts/*.sql sorted by version. Names without a numeric
// prefix are skipped; a repeated version is an error.
func load(fsys fs.FS) ([]script, error) {
	names, err := fs.Glob(fsys, "scripts/*.sql")
	if err != nil {
		return nil, err
	}

	var scripts []script
	for _, name := range names {
		v, err := parseVersion(path.Base(name))
		if err != nil {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script{version: v, name: path.Base(name), sql: string(body)})
	}

	slices.SortFunc(scripts, func(a, b script) int { return cmp.Compare(a.version, b.version) })
	for i := 1; i < len(scripts); i++ {
		if scripts[i].version == scripts[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s",
				scripts[i].version, scripts[i-1].name, scripts[i].name)
		}
	}
	return scripts, nil
}

func parseVersion(filename string) (int, error) {
	prefix, _, found := strings.Cut(filename, "_")
	if !found {
		return 0, fmt.Errorf("migration %s: missing version prefix", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migration %s: bad version %q", filename, prefix)
	}
	return v, nil
}

func apply(db *sql.DB, s script) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.sql); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO _migrations (version, name) VALUES (?, ?)", s.version, s.name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
