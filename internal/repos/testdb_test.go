package repos

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/farmguard-backend/internal/logger"
)

// testDB opens an in-memory sqlite database with the schema laid out
// explicitly: the production DDL uses postgres defaults sqlite cannot parse,
// and the repos always write ids and timestamps themselves anyway.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stmts := []string{
		`CREATE TABLE alert (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			farm_id TEXT NOT NULL,
			workplace_id TEXT,
			worker_id TEXT,
			message TEXT NOT NULL,
			message_tts TEXT,
			channels TEXT,
			target_user_ids TEXT,
			status TEXT NOT NULL DEFAULT 'SENT',
			escalation_step INTEGER NOT NULL DEFAULT 0,
			acknowledged_at DATETIME,
			acknowledged_by TEXT,
			resolved_at DATETIME,
			prediction_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE escalation_ticket (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL UNIQUE,
			next_step INTEGER NOT NULL,
			deadline_at DATETIME NOT NULL,
			generation INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE ecall (
			id TEXT PRIMARY KEY,
			alert_id TEXT,
			trigger_type TEXT NOT NULL,
			farm_id TEXT NOT NULL,
			worker_id TEXT,
			lat REAL,
			lng REAL,
			worker_info TEXT,
			accident_type TEXT,
			status TEXT NOT NULL DEFAULT 'TRIGGERED',
			resolved_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE alert_rule (
			id TEXT PRIMARY KEY,
			farm_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			channels TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE alert_recipient (
			id TEXT PRIMARY KEY,
			farm_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			alert_type TEXT,
			name TEXT NOT NULL,
			user_ids TEXT NOT NULL,
			include_external INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE alert_template (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			body TEXT NOT NULL,
			body_tts TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE escalation_rule (
			id TEXT PRIMARY KEY,
			farm_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			steps TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func repoLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}
