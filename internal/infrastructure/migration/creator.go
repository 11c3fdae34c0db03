package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

const upStub = `-- {{.Version}}_{{.Slug}}.up.sql
-- {{.Description}}
-- Created {{.Timestamp}}

`

const downStub = `-- {{.Version}}_{{.Slug}}.down.sql
-- Reverts: {{.Description}}
-- Created {{.Timestamp}}

`

// MigrationFile describes a freshly created up/down pair.
type MigrationFile struct {
	Version     string
	Name        string
	Slug        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down SQL pair into migrationsDir.
// The version prefix is the current time, so files sort in creation
// order.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	now := time.Now()
	mf := &MigrationFile{
		Version:     now.Format("20060102150405"),
		Name:        name,
		Slug:        slugify(name),
		Description: description,
		Timestamp:   now.Format(time.RFC3339),
	}
	base := mf.Version + "_" + mf.Slug
	mf.UpPath = filepath.Join(migrationsDir, base+".up.sql")
	mf.DownPath = filepath.Join(migrationsDir, base+".down.sql")

	if err := writeStub(mf.UpPath, upStub, mf); err != nil {
		return nil, fmt.Errorf("create up migration: %w", err)
	}
	if err := writeStub(mf.DownPath, downStub, mf); err != nil {
		// Do not leave a half-created pair behind.
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("create down migration: %w", err)
	}
	return mf, nil
}

// ListMigrations returns the base names of the migration pairs found
// in migrationsDir, one entry per up file. A missing directory lists
// as empty.
func ListMigrations(migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	names := make([]string, 0, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".up.sql"))
	}
	return names, nil
}

func writeStub(path, stub string, mf *MigrationFile) error {
	tmpl, err := template.New("migration").Parse(stub)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	return tmpl.Execute(f, mf)
}

// slugify lowercases a migration name and collapses separators into
// single underscores, dropping everything else.
func slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
