package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

// bootLockID keys the advisory lock that serialises boot-time migrations
// when several binaries start against one database.
const bootLockID int64 = 0x6d69766168756221

// ApplyOnBoot brings the schema up to date while a binary starts. It only
// acts in dev with MIVAHUB_AUTO_MIGRATE set; other environments run
// cmd/migrate as a release step.
func ApplyOnBoot(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: sql handle: %w", err)
	}

	unlock, err := advisoryLock(ctx, sqlDB, bootLockID)
	if err != nil {
		return err
	}
	defer unlock()

	before, err := Version(ctx, sqlDB)
	if err != nil {
		return err
	}
	if err := Run(ctx, sqlDB, Embedded, "up"); err != nil {
		return err
	}
	after, err := Version(ctx, sqlDB)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"from_version": before,
		"to_version":   after,
	}), "migrate.boot.applied")
	return nil
}

// advisoryLock holds a session-level Postgres lock on a dedicated
// connection until the returned func runs.
func advisoryLock(ctx context.Context, sqlDB *sql.DB, id int64) (func(), error) {
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: lock conn: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: acquire lock: %w", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", id)
		_ = conn.Close()
	}, nil
}
