package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all grant-store migrations. Principal and case
// tables are owned by pkg/directory and pkg/cases; the foreign keys
// here point at them.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create user_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_permissions (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission VARCHAR(64) NOT NULL,
					PRIMARY KEY (user_id, permission)
				);

				CREATE INDEX idx_user_permissions_user_id ON user_permissions(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create group_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_permissions (
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					permission VARCHAR(64) NOT NULL,
					PRIMARY KEY (group_id, permission)
				);

				CREATE INDEX idx_group_permissions_group_id ON group_permissions(group_id);
			`,
		},
		{
			Version:     3,
			Description: "Create user_case_access table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_case_access (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					level VARCHAR(16) NOT NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					PRIMARY KEY (user_id, case_id)
				);

				CREATE INDEX idx_user_case_access_case_id ON user_case_access(case_id);
			`,
		},
		{
			Version:     4,
			Description: "Create group_case_access table",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_case_access (
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					level VARCHAR(16) NOT NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					PRIMARY KEY (group_id, case_id)
				);

				CREATE INDEX idx_group_case_access_case_id ON group_case_access(case_id);
			`,
		},
		{
			Version:     5,
			Description: "Create organisation_case_access table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organisation_case_access (
					organisation_id BIGINT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					level VARCHAR(16) NOT NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					PRIMARY KEY (organisation_id, case_id)
				);

				CREATE INDEX idx_organisation_case_access_case_id ON organisation_case_access(case_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
