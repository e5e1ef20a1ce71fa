package cases

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

// GetMigrations returns all case-store migrations. These run after the
// directory migrations (FKs reference users and organisations) and
// before the authz migrations (grant tables reference cases).
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create cases table",
			SQL: `
				CREATE TABLE IF NOT EXISTS cases (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(500) NOT NULL,
					description TEXT,
					status VARCHAR(20) NOT NULL DEFAULT 'open',
					severity VARCHAR(20) NOT NULL DEFAULT 'medium',
					classification VARCHAR(255),
					owner_organisation_id BIGINT REFERENCES organisations(id) ON DELETE SET NULL,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					closed_at TIMESTAMP
				);

				CREATE INDEX idx_cases_status ON cases(status);
				CREATE INDEX idx_cases_owner_org ON cases(owner_organisation_id);
			`,
		},
		{
			Version:     2,
			Description: "Create case_tags table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_tags (
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					tag VARCHAR(255) NOT NULL,
					PRIMARY KEY (case_id, tag)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create case_assets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_assets (
					id BIGSERIAL PRIMARY KEY,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					name VARCHAR(500) NOT NULL,
					asset_type VARCHAR(100) NOT NULL,
					description TEXT,
					compromised BOOLEAN NOT NULL DEFAULT FALSE,
					added_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_case_assets_case_id ON case_assets(case_id);
			`,
		},
		{
			Version:     4,
			Description: "Create case_iocs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_iocs (
					id BIGSERIAL PRIMARY KEY,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					value VARCHAR(2048) NOT NULL,
					ioc_type VARCHAR(100) NOT NULL,
					description TEXT,
					added_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_case_iocs_case_id ON case_iocs(case_id);
				CREATE INDEX idx_case_iocs_value ON case_iocs(value);
			`,
		},
		{
			Version:     5,
			Description: "Create case_notes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_notes (
					id BIGSERIAL PRIMARY KEY,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					content TEXT,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_case_notes_case_id ON case_notes(case_id);
			`,
		},
		{
			Version:     6,
			Description: "Create case_tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_tasks (
					id BIGSERIAL PRIMARY KEY,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					description TEXT,
					status VARCHAR(20) NOT NULL DEFAULT 'todo',
					assignee_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_case_tasks_case_id ON case_tasks(case_id);
			`,
		},
		{
			Version:     7,
			Description: "Create case_evidence table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_evidence (
					id BIGSERIAL PRIMARY KEY,
					case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					filename VARCHAR(500) NOT NULL,
					content_type VARCHAR(255),
					size_bytes BIGINT NOT NULL,
					sha256 CHAR(64) NOT NULL,
					storage_key VARCHAR(1024) NOT NULL,
					description TEXT,
					uploaded_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_case_evidence_case_id ON case_evidence(case_id);
				CREATE INDEX idx_case_evidence_sha256 ON case_evidence(sha256);
			`,
		},
		{
			Version:     8,
			Description: "Create alerts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alerts (
					id BIGSERIAL PRIMARY KEY,
					organisation_id BIGINT REFERENCES organisations(id) ON DELETE SET NULL,
					title VARCHAR(500) NOT NULL,
					description TEXT,
					severity VARCHAR(20) NOT NULL DEFAULT 'medium',
					status VARCHAR(20) NOT NULL DEFAULT 'open',
					source VARCHAR(255),
					case_id BIGINT REFERENCES cases(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					closed_at TIMESTAMP
				);

				CREATE INDEX idx_alerts_org_id ON alerts(organisation_id);
				CREATE INDEX idx_alerts_status ON alerts(status);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cases_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM cases_migrations ORDER BY version")
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
			"INSERT INTO cases_migrations (version, description) VALUES ($1, $2)",
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
