// Package dbtest opens in-memory SQLite databases carrying the same tables the
// Postgres migrations create, so repositories can be exercised without a
// running server.
package dbtest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE plans (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		limits TEXT NOT NULL DEFAULT '{}',
		price_amount NUMERIC NOT NULL DEFAULT 0,
		currency_code TEXT NOT NULL DEFAULT 'USD',
		features TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		canceled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE usage_counters (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		usage_type TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		current_count INTEGER NOT NULL DEFAULT 0,
		limit_count INTEGER NOT NULL,
		plan_code TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (user_id, usage_type, period_type, period_start)
	)`,
	`CREATE TABLE materials (
		id TEXT PRIMARY KEY,
		course_id TEXT,
		uploaded_by TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		file_type TEXT NOT NULL,
		file_name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		object_key TEXT NOT NULL UNIQUE,
		week_number INTEGER,
		semester TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE processing_jobs (
		id TEXT PRIMARY KEY,
		material_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		progress INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		error_message TEXT,
		metadata TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE processed_contents (
		id TEXT PRIMARY KEY,
		material_id TEXT NOT NULL UNIQUE,
		job_id TEXT NOT NULL UNIQUE,
		summary TEXT,
		extracted_text TEXT,
		key_concepts TEXT,
		learning_objectives TEXT,
		difficulty_level TEXT,
		word_count INTEGER,
		quality_score REAL,
		model_used TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a fresh in-memory database with the full schema. Connections
// are capped at one so concurrent callers serialize on SQLite's single writer.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
