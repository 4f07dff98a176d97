package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema for accounts, linked external logins and
// stored provider configurations, in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					password_hash VARCHAR(255) NOT NULL DEFAULT '',
					mfa_required BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(lower(username));
			`,
		},
		{
			Version:     2,
			Description: "Create external_logins table",
			SQL: `
				CREATE TABLE IF NOT EXISTS external_logins (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					provider VARCHAR(255) NOT NULL,
					provider_user_id VARCHAR(512) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(provider, provider_user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_external_logins_user_id ON external_logins(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create sso_providers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sso_providers (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					caption VARCHAR(255) NOT NULL DEFAULT '',
					provider_type VARCHAR(20) NOT NULL,
					preset VARCHAR(50) NOT NULL DEFAULT '',
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					saml_config JSONB,
					oauth2_config JSONB,
					oidc_config JSONB,
					attribute_mapping JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations applies the migrations not yet recorded in
// threshold_migrations. Each one runs in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS threshold_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM threshold_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Applied migration")
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO threshold_migrations (version, description) VALUES ($1, $2)",
		m.Version, m.Description,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
