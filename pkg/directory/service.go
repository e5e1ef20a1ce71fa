package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/observability"
)

// Service provides user, group, and organisation management
type Service interface {
	// Users
	CreateUser(ctx context.Context, req CreateUserRequest, actorID *int64) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, id int64, req UpdateUserRequest, actorID *int64) (*User, error)
	DeleteUser(ctx context.Context, id int64, actorID *int64) error

	// Groups
	CreateGroup(ctx context.Context, req CreateGroupRequest, actorID *int64) (*Group, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest, actorID *int64) (*Group, error)
	DeleteGroup(ctx context.Context, id int64, actorID *int64) error

	// Group membership
	AddGroupMember(ctx context.Context, groupID, userID int64, actorID *int64) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64, actorID *int64) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]*GroupMember, error)
	ListUserGroups(ctx context.Context, userID int64) ([]*Group, error)

	// Organisations
	CreateOrg(ctx context.Context, req CreateOrgRequest, actorID *int64) (*Organisation, error)
	GetOrg(ctx context.Context, id int64) (*Organisation, error)
	ListOrgs(ctx context.Context) ([]*Organisation, error)
	UpdateOrg(ctx context.Context, id int64, req UpdateOrgRequest, actorID *int64) (*Organisation, error)
	DeleteOrg(ctx context.Context, id int64, actorID *int64) error

	// Organisation membership
	AddOrgMember(ctx context.Context, orgID, userID int64, actorID *int64) error
	RemoveOrgMember(ctx context.Context, orgID, userID int64, actorID *int64) error
	ListOrgMembers(ctx context.Context, orgID int64) ([]*OrgMember, error)
	ListUserOrgs(ctx context.Context, userID int64) ([]*Organisation, error)

	// Permission assignment
	SetUserPermissions(ctx context.Context, userID int64, perms authz.PermissionSet, actorID *int64) error
	SetGroupPermissions(ctx context.Context, groupID int64, perms authz.PermissionSet, actorID *int64) error
	GetUserPermissions(ctx context.Context, userID int64) (authz.PermissionSet, error)
	GetGroupPermissions(ctx context.Context, groupID int64) (authz.PermissionSet, error)
}

// PostgresService implements Service with PostgreSQL storage. Mutations
// that affect effective permissions trigger a recompute through the
// authorization resolver so cached permission sets never go stale.
type PostgresService struct {
	db       *sql.DB
	authz    *authz.Store
	resolver *authz.Resolver
	auditLog audit.Logger
	logger   *observability.Logger
}

// NewPostgresService creates a new directory service. auditLog may be
// nil, in which case the audit logger is taken from the request context.
func NewPostgresService(db *sql.DB, authzStore *authz.Store, resolver *authz.Resolver, auditLog audit.Logger, logger *observability.Logger) *PostgresService {
	return &PostgresService{
		db:       db,
		authz:    authzStore,
		resolver: resolver,
		auditLog: auditLog,
		logger:   logger,
	}
}

func (s *PostgresService) audit(ctx context.Context) audit.Logger {
	if s.auditLog != nil {
		return s.auditLog
	}
	return audit.FromContext(ctx)
}

// CreateUser creates a new user account
func (s *PostgresService) CreateUser(ctx context.Context, req CreateUserRequest, actorID *int64) (*User, error) {
	if req.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	user := &User{
		Username:  req.Username,
		Email:     req.Email,
		FullName:  req.FullName,
		IsService: req.IsService,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO users (username, email, full_name, is_service, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		user.Username, nullString(user.Email), nullString(user.FullName),
		user.IsService, user.IsActive, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	uid := user.ID
	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminUserCreate, actorID, &uid,
		fmt.Sprintf("created user %q", user.Username))

	return user, nil
}

// GetUser retrieves a user by ID
func (s *PostgresService) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id = $1", id)
}

// GetUserByUsername retrieves a user by username
func (s *PostgresService) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username = $1", username)
}

func (s *PostgresService) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	query := `
		SELECT id, username, email, full_name, is_service, is_active, created_at, updated_at
		FROM users
		WHERE ` + where

	user := &User{}
	var email, fullName sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &email, &fullName,
		&user.IsService, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Email = email.String
	user.FullName = fullName.String
	return user, nil
}

// ListUsers retrieves all users
func (s *PostgresService) ListUsers(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, username, email, full_name, is_service, is_active, created_at, updated_at
		FROM users
		ORDER BY username ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		var email, fullName sql.NullString
		if err := rows.Scan(
			&user.ID, &user.Username, &email, &fullName,
			&user.IsService, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Email = email.String
		user.FullName = fullName.String
		users = append(users, user)
	}

	return users, rows.Err()
}

// UpdateUser updates user fields
func (s *PostgresService) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest, actorID *int64) (*User, error) {
	setClauses := []string{}
	args := []interface{}{}
	argCount := 1

	if req.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argCount))
		args = append(args, *req.Email)
		argCount++
	}
	if req.FullName != nil {
		setClauses = append(setClauses, fmt.Sprintf("full_name = $%d", argCount))
		args = append(args, *req.FullName)
		argCount++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argCount))
		args = append(args, *req.IsActive)
		argCount++
	}

	if len(setClauses) == 0 {
		return s.GetUser(ctx, id)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argCount))
	args = append(args, time.Now().UTC())
	argCount++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", joinClauses(setClauses), argCount)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	uid := id
	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminUserUpdate, actorID, &uid, "updated user")

	// Deactivating an account invalidates its cached permissions
	if req.IsActive != nil && !*req.IsActive {
		if err := s.resolver.RecomputeUser(ctx, id); err != nil && s.logger != nil {
			s.logger.WithError(err).WithField("user_id", id).Warn("failed to recompute deactivated user")
		}
	}

	return s.GetUser(ctx, id)
}

// DeleteUser removes a user and all of their memberships and grants
func (s *PostgresService) DeleteUser(ctx context.Context, id int64, actorID *int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM group_members WHERE user_id = $1`,
			`DELETE FROM organisation_members WHERE user_id = $1`,
			`DELETE FROM user_permissions WHERE user_id = $1`,
			`DELETE FROM user_case_access WHERE user_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	uid := id
	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminUserDelete, actorID, &uid, "deleted user")

	if err := s.resolver.RecomputeUser(ctx, id); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("user_id", id).Warn("failed to invalidate deleted user")
	}

	return nil
}

// CreateGroup creates a new group
func (s *PostgresService) CreateGroup(ctx context.Context, req CreateGroupRequest, actorID *int64) (*Group, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("group name is required")
	}

	group := &Group{
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO groups (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		group.Name, nullString(group.Description), group.CreatedAt, group.UpdatedAt,
	).Scan(&group.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminGroupCreate, actorID, nil,
		fmt.Sprintf("created group %q", group.Name))

	return group, nil
}

// GetGroup retrieves a group by ID
func (s *PostgresService) GetGroup(ctx context.Context, id int64) (*Group, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM groups WHERE id = $1`

	group := &Group{}
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&group.ID, &group.Name, &description, &group.CreatedAt, &group.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group.Description = description.String
	return group, nil
}

// ListGroups retrieves all groups
func (s *PostgresService) ListGroups(ctx context.Context) ([]*Group, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM groups ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group := &Group{}
		var description sql.NullString
		if err := rows.Scan(&group.ID, &group.Name, &description, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		group.Description = description.String
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// UpdateGroup updates group fields
func (s *PostgresService) UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest, actorID *int64) (*Group, error) {
	setClauses := []string{}
	args := []interface{}{}
	argCount := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argCount))
		args = append(args, *req.Name)
		argCount++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argCount))
		args = append(args, *req.Description)
		argCount++
	}

	if len(setClauses) == 0 {
		return s.GetGroup(ctx, id)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argCount))
	args = append(args, time.Now().UTC())
	argCount++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE groups SET %s WHERE id = $%d", joinClauses(setClauses), argCount)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminGroupUpdate, actorID, nil,
		fmt.Sprintf("updated group %d", id))

	return s.GetGroup(ctx, id)
}

// DeleteGroup removes a group, its memberships, permissions, and case
// access grants. Every former member is recomputed afterwards.
func (s *PostgresService) DeleteGroup(ctx context.Context, id int64, actorID *int64) error {
	memberIDs, err := s.authz.GroupMemberIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list group members: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM group_members WHERE group_id = $1`,
			`DELETE FROM group_permissions WHERE group_id = $1`,
			`DELETE FROM group_case_access WHERE group_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("failed to delete group: %w", err)
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminGroupDelete, actorID, nil,
		fmt.Sprintf("deleted group %d", id))

	s.recomputeUsers(ctx, memberIDs)
	return nil
}

// AddGroupMember adds a user to a group and recomputes their permissions
func (s *PostgresService) AddGroupMember(ctx context.Context, groupID, userID int64, actorID *int64) error {
	query := `
		INSERT INTO group_members (group_id, user_id, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, groupID, userID, actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminMemberAdd, actorID, &userID,
		fmt.Sprintf("added user %d to group %d", userID, groupID))

	if err := s.resolver.RecomputeUser(ctx, userID); err != nil {
		return fmt.Errorf("membership saved but recompute failed: %w", err)
	}
	return nil
}

// RemoveGroupMember removes a user from a group and recomputes their permissions
func (s *PostgresService) RemoveGroupMember(ctx context.Context, groupID, userID int64, actorID *int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminMemberRemove, actorID, &userID,
		fmt.Sprintf("removed user %d from group %d", userID, groupID))

	if err := s.resolver.RecomputeUser(ctx, userID); err != nil {
		return fmt.Errorf("membership removed but recompute failed: %w", err)
	}
	return nil
}

// ListGroupMembers retrieves all members of a group
func (s *PostgresService) ListGroupMembers(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	query := `
		SELECT gm.group_id, gm.user_id, u.username, gm.added_by, gm.added_at
		FROM group_members gm
		INNER JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY u.username ASC
	`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		member := &GroupMember{}
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.Username, &member.AddedBy, &member.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// ListUserGroups retrieves the groups a user belongs to
func (s *PostgresService) ListUserGroups(ctx context.Context, userID int64) ([]*Group, error) {
	query := `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at
		FROM groups g
		INNER JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group := &Group{}
		var description sql.NullString
		if err := rows.Scan(&group.ID, &group.Name, &description, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		group.Description = description.String
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// CreateOrg creates a new organisation
func (s *PostgresService) CreateOrg(ctx context.Context, req CreateOrgRequest, actorID *int64) (*Organisation, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("organisation name is required")
	}

	org := &Organisation{
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO organisations (name, description, contact_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		org.Name, nullString(org.Description), nullString(org.ContactEmail),
		org.CreatedAt, org.UpdatedAt,
	).Scan(&org.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create organisation: %w", err)
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminOrgCreate, actorID, nil,
		fmt.Sprintf("created organisation %q", org.Name))

	return org, nil
}

// GetOrg retrieves an organisation by ID
func (s *PostgresService) GetOrg(ctx context.Context, id int64) (*Organisation, error) {
	query := `SELECT id, name, description, contact_email, created_at, updated_at FROM organisations WHERE id = $1`

	org := &Organisation{}
	var description, contactEmail sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &description, &contactEmail, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organisation: %w", err)
	}

	org.Description = description.String
	org.ContactEmail = contactEmail.String
	return org, nil
}

// ListOrgs retrieves all organisations
func (s *PostgresService) ListOrgs(ctx context.Context) ([]*Organisation, error) {
	query := `SELECT id, name, description, contact_email, created_at, updated_at FROM organisations ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organisation
	for rows.Next() {
		org := &Organisation{}
		var description, contactEmail sql.NullString
		if err := rows.Scan(&org.ID, &org.Name, &description, &contactEmail, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organisation: %w", err)
		}
		org.Description = description.String
		org.ContactEmail = contactEmail.String
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// UpdateOrg updates organisation fields
func (s *PostgresService) UpdateOrg(ctx context.Context, id int64, req UpdateOrgRequest, actorID *int64) (*Organisation, error) {
	setClauses := []string{}
	args := []interface{}{}
	argCount := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argCount))
		args = append(args, *req.Name)
		argCount++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argCount))
		args = append(args, *req.Description)
		argCount++
	}
	if req.ContactEmail != nil {
		setClauses = append(setClauses, fmt.Sprintf("contact_email = $%d", argCount))
		args = append(args, *req.ContactEmail)
		argCount++
	}

	if len(setClauses) == 0 {
		return s.GetOrg(ctx, id)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argCount))
	args = append(args, time.Now().UTC())
	argCount++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE organisations SET %s WHERE id = $%d", joinClauses(setClauses), argCount)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update organisation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminOrgUpdate, actorID, nil,
		fmt.Sprintf("updated organisation %d", id))

	return s.GetOrg(ctx, id)
}

// DeleteOrg removes an organisation, its memberships, and its case grants
func (s *PostgresService) DeleteOrg(ctx context.Context, id int64, actorID *int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM organisation_members WHERE organisation_id = $1`,
			`DELETE FROM organisation_case_access WHERE organisation_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM organisations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("failed to delete organisation: %w", err)
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminOrgDelete, actorID, nil,
		fmt.Sprintf("deleted organisation %d", id))

	return nil
}

// AddOrgMember adds a user to an organisation. Organisation membership
// only affects case access, which is resolved live, so no permission
// recompute is needed.
func (s *PostgresService) AddOrgMember(ctx context.Context, orgID, userID int64, actorID *int64) error {
	query := `
		INSERT INTO organisation_members (organisation_id, user_id, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organisation_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, orgID, userID, actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add organisation member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminMemberAdd, actorID, &userID,
		fmt.Sprintf("added user %d to organisation %d", userID, orgID))

	return nil
}

// RemoveOrgMember removes a user from an organisation
func (s *PostgresService) RemoveOrgMember(ctx context.Context, orgID, userID int64, actorID *int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM organisation_members WHERE organisation_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove organisation member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_ = s.audit(ctx).LogAdminAction(ctx, audit.EventTypeAdminMemberRemove, actorID, &userID,
		fmt.Sprintf("removed user %d from organisation %d", userID, orgID))

	return nil
}

// ListOrgMembers retrieves all members of an organisation
func (s *PostgresService) ListOrgMembers(ctx context.Context, orgID int64) ([]*OrgMember, error) {
	query := `
		SELECT om.organisation_id, om.user_id, u.username, om.added_by, om.added_at
		FROM organisation_members om
		INNER JOIN users u ON u.id = om.user_id
		WHERE om.organisation_id = $1
		ORDER BY u.username ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organisation members: %w", err)
	}
	defer rows.Close()

	var members []*OrgMember
	for rows.Next() {
		member := &OrgMember{}
		if err := rows.Scan(&member.OrganisationID, &member.UserID, &member.Username, &member.AddedBy, &member.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organisation member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// ListUserOrgs retrieves the organisations a user belongs to
func (s *PostgresService) ListUserOrgs(ctx context.Context, userID int64) ([]*Organisation, error) {
	query := `
		SELECT o.id, o.name, o.description, o.contact_email, o.created_at, o.updated_at
		FROM organisations o
		INNER JOIN organisation_members om ON om.organisation_id = o.id
		WHERE om.user_id = $1
		ORDER BY o.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user organisations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organisation
	for rows.Next() {
		org := &Organisation{}
		var description, contactEmail sql.NullString
		if err := rows.Scan(&org.ID, &org.Name, &description, &contactEmail, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organisation: %w", err)
		}
		org.Description = description.String
		org.ContactEmail = contactEmail.String
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// SetUserPermissions replaces a user's direct permissions and recomputes
// their effective set
func (s *PostgresService) SetUserPermissions(ctx context.Context, userID int64, perms authz.PermissionSet, actorID *int64) error {
	if err := s.authz.ReplaceUserPermissions(ctx, userID, perms); err != nil {
		return err
	}

	_ = s.audit(ctx).LogAuthorization(ctx, audit.EventTypeAuthzPermSetUser, actorID,
		audit.ResourceTypeUser, strconv.FormatInt(userID, 10), audit.EventStatusSuccess,
		fmt.Sprintf("set user permissions to [%s]", perms.String()))

	if err := s.resolver.RecomputeUser(ctx, userID); err != nil {
		return fmt.Errorf("permissions saved but recompute failed: %w", err)
	}
	return nil
}

// SetGroupPermissions replaces a group's permissions and recomputes every
// member's effective set
func (s *PostgresService) SetGroupPermissions(ctx context.Context, groupID int64, perms authz.PermissionSet, actorID *int64) error {
	if err := s.authz.ReplaceGroupPermissions(ctx, groupID, perms); err != nil {
		return err
	}

	_ = s.audit(ctx).LogAuthorization(ctx, audit.EventTypeAuthzPermSetGroup, actorID,
		audit.ResourceTypeGroup, strconv.FormatInt(groupID, 10), audit.EventStatusSuccess,
		fmt.Sprintf("set group permissions to [%s]", perms.String()))

	memberIDs, err := s.authz.GroupMemberIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("permissions saved but member listing failed: %w", err)
	}
	s.recomputeUsers(ctx, memberIDs)
	return nil
}

// GetUserPermissions returns a user's effective permission set
func (s *PostgresService) GetUserPermissions(ctx context.Context, userID int64) (authz.PermissionSet, error) {
	return s.resolver.ResolvePermissions(ctx, userID)
}

// GetGroupPermissions returns the permissions assigned to a group
func (s *PostgresService) GetGroupPermissions(ctx context.Context, groupID int64) (authz.PermissionSet, error) {
	return s.authz.GetGroupPermissions(ctx, groupID)
}

func (s *PostgresService) recomputeUsers(ctx context.Context, userIDs []int64) {
	for _, userID := range userIDs {
		if err := s.resolver.RecomputeUser(ctx, userID); err != nil && s.logger != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("failed to recompute user")
		}
	}
}

func (s *PostgresService) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func joinClauses(clauses []string) string {
	return strings.Join(clauses, ", ")
}
