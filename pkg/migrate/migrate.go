package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written and where the embedded set
// is read from at build time.
const DefaultDir = "pkg/migrate/migrations"

const (
	dialect     = "postgres"
	embeddedDir = "migrations"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Source tells goose where to read migrations from. The zero value uses the
// files compiled into the binary.
type Source struct {
	Dir string
}

// Embedded is the migration set shipped with every binary.
var Embedded = Source{}

func (s Source) fs() (fs.FS, string) {
	if s.Dir == "" {
		return embedded, embeddedDir
	}
	return os.DirFS(s.Dir), "."
}

func (s Source) String() string {
	if s.Dir == "" {
		return "embedded"
	}
	return s.Dir
}

func prepare(db *sql.DB, src Source) (string, error) {
	if db == nil {
		return "", errors.New("migrate: db is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	fsys, dir := src.fs()
	goose.SetBaseFS(fsys)
	return dir, nil
}

// Run executes a goose command (up, down, status, redo, reset) against db.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	dir, err := prepare(db, src)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s (%s): %w", command, src, err)
	}
	return nil
}

// MigrateTo moves the schema up or down until it sits at target.
func MigrateTo(ctx context.Context, db *sql.DB, src Source, target int64) error {
	dir, err := prepare(db, src)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// Version reports the schema version recorded by goose.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if _, err := prepare(db, Embedded); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
