package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists grants: per-case access rows for users, groups and
// organisations, plus global permission sets for users and groups.
//
// All reads INNER JOIN against the principal and case tables, so grants
// whose subject or case has been deleted are void: they contribute
// nothing to resolution. The integrity sweep reports them separately.
type Store struct {
	db *sql.DB
}

// NewStore creates a new grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- global permission sets ---

// GetUserDirectPermissions returns the permissions granted directly to a user
func (s *Store) GetUserDirectPermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT up.permission
		FROM user_permissions up
		JOIN users u ON u.id = up.user_id
		WHERE up.user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissionSet(rows)
}

// GetUserGroupPermissions returns the union of permission sets of every
// group the user belongs to
func (s *Store) GetUserGroupPermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT gp.permission
		FROM group_permissions gp
		JOIN groups g ON g.id = gp.group_id
		JOIN group_members gm ON gm.group_id = gp.group_id
		JOIN users u ON u.id = gm.user_id
		WHERE gm.user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissionSet(rows)
}

// GetGroupPermissions returns a group's permission set
func (s *Store) GetGroupPermissions(ctx context.Context, groupID int64) (PermissionSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission FROM group_permissions WHERE group_id = $1`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissionSet(rows)
}

// ReplaceUserPermissions atomically replaces a user's direct permission
// set. Readers observe either the old set or the new one, never a mix.
func (s *Store) ReplaceUserPermissions(ctx context.Context, userID int64, perms PermissionSet) error {
	if err := validatePermissions(perms); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to clear user permissions: %w", err)
		}
		for _, p := range perms.Slice() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_permissions (user_id, permission) VALUES ($1, $2)`,
				userID, string(p)); err != nil {
				return fmt.Errorf("failed to insert user permission: %w", err)
			}
		}
		return nil
	})
}

// ReplaceGroupPermissions atomically replaces a group's permission set
func (s *Store) ReplaceGroupPermissions(ctx context.Context, groupID int64, perms PermissionSet) error {
	if err := validatePermissions(perms); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_permissions WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("failed to clear group permissions: %w", err)
		}
		for _, p := range perms.Slice() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO group_permissions (group_id, permission) VALUES ($1, $2)`,
				groupID, string(p)); err != nil {
				return fmt.Errorf("failed to insert group permission: %w", err)
			}
		}
		return nil
	})
}

// GroupMemberIDs returns the user ids belonging to a group, for
// post-mutation recompute fan-out
func (s *Store) GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gm.user_id
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// ListUserIDs returns all user ids, for bulk recomputation
func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// --- case access grants ---

// caseAccessLevels gathers every access level applicable to the user on
// a case: the direct grant, every group grant through membership, and
// every organisation grant through membership. Dangling rows are voided
// by the joins.
func (s *Store) caseAccessLevels(ctx context.Context, userID, caseID int64) ([]AccessLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uca.level
		FROM user_case_access uca
		JOIN users u ON u.id = uca.user_id
		JOIN cases c ON c.id = uca.case_id
		WHERE uca.user_id = $1 AND uca.case_id = $2
		UNION ALL
		SELECT gca.level
		FROM group_case_access gca
		JOIN groups g ON g.id = gca.group_id
		JOIN group_members gm ON gm.group_id = gca.group_id
		JOIN cases c ON c.id = gca.case_id
		WHERE gm.user_id = $1 AND gca.case_id = $2
		UNION ALL
		SELECT oca.level
		FROM organisation_case_access oca
		JOIN organisations o ON o.id = oca.organisation_id
		JOIN organisation_members om ON om.organisation_id = oca.organisation_id
		JOIN cases c ON c.id = oca.case_id
		WHERE om.user_id = $1 AND oca.case_id = $2`,
		userID, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query case access: %w", err)
	}
	defer rows.Close()

	var levels []AccessLevel
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan access level: %w", err)
		}
		level := AccessLevel(raw)
		if !level.Valid() {
			return nil, &InvalidGrantStateError{Detail: fmt.Sprintf("access level %q on case %d", raw, caseID)}
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// GrantedCaseIDs returns every case id the user has any grant row on,
// directly or through group/organisation membership. Deny filtering is
// the resolver's job.
func (s *Store) GrantedCaseIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT case_id FROM (
			SELECT uca.case_id
			FROM user_case_access uca
			JOIN cases c ON c.id = uca.case_id
			WHERE uca.user_id = $1
			UNION
			SELECT gca.case_id
			FROM group_case_access gca
			JOIN group_members gm ON gm.group_id = gca.group_id
			JOIN cases c ON c.id = gca.case_id
			WHERE gm.user_id = $1
			UNION
			SELECT oca.case_id
			FROM organisation_case_access oca
			JOIN organisation_members om ON om.organisation_id = oca.organisation_id
			JOIN cases c ON c.id = oca.case_id
			WHERE om.user_id = $1
		) grants ORDER BY case_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query granted cases: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// SetUserCaseAccess upserts the user's direct grant on a case
func (s *Store) SetUserCaseAccess(ctx context.Context, userID, caseID int64, level AccessLevel, grantedBy *int64) error {
	if !level.Valid() {
		return &InvalidGrantStateError{Detail: fmt.Sprintf("access level %q", level)}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_case_access WHERE user_id = $1 AND case_id = $2`,
			userID, caseID); err != nil {
			return fmt.Errorf("failed to clear user case access: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_case_access (user_id, case_id, level, granted_at, granted_by)
			VALUES ($1, $2, $3, $4, $5)`,
			userID, caseID, string(level), time.Now().UTC(), grantedBy); err != nil {
			return fmt.Errorf("failed to insert user case access: %w", err)
		}
		return nil
	})
}

// RemoveUserCaseAccess removes the user's direct grant on a case
func (s *Store) RemoveUserCaseAccess(ctx context.Context, userID, caseID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_case_access WHERE user_id = $1 AND case_id = $2`,
		userID, caseID)
	if err != nil {
		return fmt.Errorf("failed to remove user case access: %w", err)
	}
	return nil
}

// SetGroupCaseAccess upserts a group's grant on a case
func (s *Store) SetGroupCaseAccess(ctx context.Context, groupID, caseID int64, level AccessLevel, grantedBy *int64) error {
	if !level.Valid() {
		return &InvalidGrantStateError{Detail: fmt.Sprintf("access level %q", level)}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_case_access WHERE group_id = $1 AND case_id = $2`,
			groupID, caseID); err != nil {
			return fmt.Errorf("failed to clear group case access: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_case_access (group_id, case_id, level, granted_at, granted_by)
			VALUES ($1, $2, $3, $4, $5)`,
			groupID, caseID, string(level), time.Now().UTC(), grantedBy); err != nil {
			return fmt.Errorf("failed to insert group case access: %w", err)
		}
		return nil
	})
}

// RemoveGroupCaseAccess removes a group's grant on a case
func (s *Store) RemoveGroupCaseAccess(ctx context.Context, groupID, caseID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_case_access WHERE group_id = $1 AND case_id = $2`,
		groupID, caseID)
	if err != nil {
		return fmt.Errorf("failed to remove group case access: %w", err)
	}
	return nil
}

// SetOrgCaseAccess upserts an organisation's grant on a case
func (s *Store) SetOrgCaseAccess(ctx context.Context, orgID, caseID int64, level AccessLevel, grantedBy *int64) error {
	if !level.Valid() {
		return &InvalidGrantStateError{Detail: fmt.Sprintf("access level %q", level)}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM organisation_case_access WHERE organisation_id = $1 AND case_id = $2`,
			orgID, caseID); err != nil {
			return fmt.Errorf("failed to clear organisation case access: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO organisation_case_access (organisation_id, case_id, level, granted_at, granted_by)
			VALUES ($1, $2, $3, $4, $5)`,
			orgID, caseID, string(level), time.Now().UTC(), grantedBy); err != nil {
			return fmt.Errorf("failed to insert organisation case access: %w", err)
		}
		return nil
	})
}

// RemoveOrgCaseAccess removes an organisation's grant on a case
func (s *Store) RemoveOrgCaseAccess(ctx context.Context, orgID, caseID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM organisation_case_access WHERE organisation_id = $1 AND case_id = $2`,
		orgID, caseID)
	if err != nil {
		return fmt.Errorf("failed to remove organisation case access: %w", err)
	}
	return nil
}

// CaseGrants lists every grant row on a case for administrative display
type CaseGrants struct {
	Users  []UserCaseGrant  `json:"users"`
	Groups []GroupCaseGrant `json:"groups"`
	Orgs   []OrgCaseGrant   `json:"organisations"`
}

// ListCaseGrants returns all live grants on a case
func (s *Store) ListCaseGrants(ctx context.Context, caseID int64) (*CaseGrants, error) {
	out := &CaseGrants{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT uca.user_id, uca.case_id, uca.level, uca.granted_at, uca.granted_by
		FROM user_case_access uca
		JOIN users u ON u.id = uca.user_id
		WHERE uca.case_id = $1 ORDER BY uca.user_id`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user grants: %w", err)
	}
	for rows.Next() {
		var g UserCaseGrant
		var grantedBy sql.NullInt64
		var raw string
		if err := rows.Scan(&g.UserID, &g.CaseID, &raw, &g.GrantedAt, &grantedBy); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user grant: %w", err)
		}
		g.Level = AccessLevel(raw)
		if grantedBy.Valid {
			v := grantedBy.Int64
			g.GrantedBy = &v
		}
		out.Users = append(out.Users, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT gca.group_id, gca.case_id, gca.level, gca.granted_at, gca.granted_by
		FROM group_case_access gca
		JOIN groups g ON g.id = gca.group_id
		WHERE gca.case_id = $1 ORDER BY gca.group_id`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group grants: %w", err)
	}
	for rows.Next() {
		var g GroupCaseGrant
		var grantedBy sql.NullInt64
		var raw string
		if err := rows.Scan(&g.GroupID, &g.CaseID, &raw, &g.GrantedAt, &grantedBy); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group grant: %w", err)
		}
		g.Level = AccessLevel(raw)
		if grantedBy.Valid {
			v := grantedBy.Int64
			g.GrantedBy = &v
		}
		out.Groups = append(out.Groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT oca.organisation_id, oca.case_id, oca.level, oca.granted_at, oca.granted_by
		FROM organisation_case_access oca
		JOIN organisations o ON o.id = oca.organisation_id
		WHERE oca.case_id = $1 ORDER BY oca.organisation_id`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organisation grants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g OrgCaseGrant
		var grantedBy sql.NullInt64
		var raw string
		if err := rows.Scan(&g.OrgID, &g.CaseID, &raw, &g.GrantedAt, &grantedBy); err != nil {
			return nil, fmt.Errorf("failed to scan organisation grant: %w", err)
		}
		g.Level = AccessLevel(raw)
		if grantedBy.Valid {
			v := grantedBy.Int64
			g.GrantedBy = &v
		}
		out.Orgs = append(out.Orgs, g)
	}
	return out, rows.Err()
}

// DanglingGrantCounts reports grant rows whose subject or case no
// longer exists, per table
type DanglingGrantCounts struct {
	UserCaseAccess  int64 `json:"user_case_access"`
	GroupCaseAccess int64 `json:"group_case_access"`
	OrgCaseAccess   int64 `json:"organisation_case_access"`
	UserPermissions int64 `json:"user_permissions"`
	GroupPerms      int64 `json:"group_permissions"`
}

// Total sums the counts across tables
func (d DanglingGrantCounts) Total() int64 {
	return d.UserCaseAccess + d.GroupCaseAccess + d.OrgCaseAccess + d.UserPermissions + d.GroupPerms
}

// CountDanglingGrants finds grant rows voided by principal or case
// deletion. Resolution already ignores them; this exists so the
// integrity sweep can surface them.
func (s *Store) CountDanglingGrants(ctx context.Context) (DanglingGrantCounts, error) {
	var counts DanglingGrantCounts

	queries := []struct {
		dst   *int64
		query string
	}{
		{&counts.UserCaseAccess, `
			SELECT COUNT(*) FROM user_case_access uca
			LEFT JOIN users u ON u.id = uca.user_id
			LEFT JOIN cases c ON c.id = uca.case_id
			WHERE u.id IS NULL OR c.id IS NULL`},
		{&counts.GroupCaseAccess, `
			SELECT COUNT(*) FROM group_case_access gca
			LEFT JOIN groups g ON g.id = gca.group_id
			LEFT JOIN cases c ON c.id = gca.case_id
			WHERE g.id IS NULL OR c.id IS NULL`},
		{&counts.OrgCaseAccess, `
			SELECT COUNT(*) FROM organisation_case_access oca
			LEFT JOIN organisations o ON o.id = oca.organisation_id
			LEFT JOIN cases c ON c.id = oca.case_id
			WHERE o.id IS NULL OR c.id IS NULL`},
		{&counts.UserPermissions, `
			SELECT COUNT(*) FROM user_permissions up
			LEFT JOIN users u ON u.id = up.user_id
			WHERE u.id IS NULL`},
		{&counts.GroupPerms, `
			SELECT COUNT(*) FROM group_permissions gp
			LEFT JOIN groups g ON g.id = gp.group_id
			WHERE g.id IS NULL`},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return counts, fmt.Errorf("failed to count dangling grants: %w", err)
		}
	}
	return counts, nil
}

// PurgeDanglingGrants deletes voided grant rows. Safe to run at any
// time: resolution never sees these rows.
func (s *Store) PurgeDanglingGrants(ctx context.Context) (int64, error) {
	statements := []string{
		`DELETE FROM user_case_access WHERE user_id NOT IN (SELECT id FROM users)
			OR case_id NOT IN (SELECT id FROM cases)`,
		`DELETE FROM group_case_access WHERE group_id NOT IN (SELECT id FROM groups)
			OR case_id NOT IN (SELECT id FROM cases)`,
		`DELETE FROM organisation_case_access WHERE organisation_id NOT IN (SELECT id FROM organisations)
			OR case_id NOT IN (SELECT id FROM cases)`,
		`DELETE FROM user_permissions WHERE user_id NOT IN (SELECT id FROM users)`,
		`DELETE FROM group_permissions WHERE group_id NOT IN (SELECT id FROM groups)`,
	}

	var total int64
	for _, stmt := range statements {
		res, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return total, fmt.Errorf("failed to purge dangling grants: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func validatePermissions(perms PermissionSet) error {
	for p := range perms {
		if !Catalog[p] {
			return &InvalidGrantStateError{Detail: fmt.Sprintf("permission %q is not in the catalog", p)}
		}
	}
	return nil
}

func scanPermissionSet(rows *sql.Rows) (PermissionSet, error) {
	set := make(PermissionSet)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		set.Add(Permission(raw))
	}
	return set, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
