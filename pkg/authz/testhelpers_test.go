package authz

import (
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/casetrail/casetrail/pkg/observability"
)

// setupTestDB builds an in-memory schema mirroring the production
// tables the grant store joins against.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE
		);

		CREATE TABLE groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE group_members (
			group_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		);

		CREATE TABLE organisations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE organisation_members (
			organisation_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (organisation_id, user_id)
		);

		CREATE TABLE cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			owner_org_id INTEGER
		);

		CREATE TABLE user_permissions (
			user_id INTEGER NOT NULL,
			permission TEXT NOT NULL,
			PRIMARY KEY (user_id, permission)
		);

		CREATE TABLE group_permissions (
			group_id INTEGER NOT NULL,
			permission TEXT NOT NULL,
			PRIMARY KEY (group_id, permission)
		);

		CREATE TABLE user_case_access (
			user_id INTEGER NOT NULL,
			case_id INTEGER NOT NULL,
			level TEXT NOT NULL,
			granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			granted_by INTEGER,
			PRIMARY KEY (user_id, case_id)
		);

		CREATE TABLE group_case_access (
			group_id INTEGER NOT NULL,
			case_id INTEGER NOT NULL,
			level TEXT NOT NULL,
			granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			granted_by INTEGER,
			PRIMARY KEY (group_id, case_id)
		);

		CREATE TABLE organisation_case_access (
			organisation_id INTEGER NOT NULL,
			case_id INTEGER NOT NULL,
			level TEXT NOT NULL,
			granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			granted_by INTEGER,
			PRIMARY KEY (organisation_id, case_id)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec failed: %v\nquery: %s", err, query)
	}
}

func addUser(t *testing.T, db *sql.DB, id int64, username string) {
	mustExec(t, db, `INSERT INTO users (id, username) VALUES (?, ?)`, id, username)
}

func addGroup(t *testing.T, db *sql.DB, id int64, name string) {
	mustExec(t, db, `INSERT INTO groups (id, name) VALUES (?, ?)`, id, name)
}

func addGroupMember(t *testing.T, db *sql.DB, groupID, userID int64) {
	mustExec(t, db, `INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`, groupID, userID)
}

func addOrg(t *testing.T, db *sql.DB, id int64, name string) {
	mustExec(t, db, `INSERT INTO organisations (id, name) VALUES (?, ?)`, id, name)
}

func addOrgMember(t *testing.T, db *sql.DB, orgID, userID int64) {
	mustExec(t, db, `INSERT INTO organisation_members (organisation_id, user_id) VALUES (?, ?)`, orgID, userID)
}

func addCase(t *testing.T, db *sql.DB, id int64, name string) {
	mustExec(t, db, `INSERT INTO cases (id, name) VALUES (?, ?)`, id, name)
}
