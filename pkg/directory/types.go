package directory

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a principal does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a unique constraint would be violated
var ErrAlreadyExists = errors.New("already exists")

// User represents an account that can authenticate and hold permissions
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	IsService bool      `json:"is_service"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Group represents a named set of users that can hold permissions and
// case access grants
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Organisation represents a customer or tenant whose members can be
// granted case access collectively
type Organisation struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GroupMember represents a user's membership in a group
type GroupMember struct {
	GroupID  int64     `json:"group_id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	AddedBy  *int64    `json:"added_by,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// OrgMember represents a user's membership in an organisation
type OrgMember struct {
	OrganisationID int64     `json:"organisation_id"`
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	AddedBy        *int64    `json:"added_by,omitempty"`
	AddedAt        time.Time `json:"added_at"`
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	IsService bool   `json:"is_service,omitempty"`
}

// UpdateUserRequest represents a request to update a user
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// CreateGroupRequest represents a request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateGroupRequest represents a request to update a group
type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateOrgRequest represents a request to create an organisation
type CreateOrgRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// UpdateOrgRequest represents a request to update an organisation
type UpdateOrgRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	ContactEmail *string `json:"contact_email,omitempty"`
}
