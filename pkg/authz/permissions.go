package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a named global capability
type Permission string

const (
	PermStandardUser        Permission = "standard_user"
	PermServerAdministrator Permission = "server_administrator"
	PermAlertsRead          Permission = "alerts_read"
	PermAlertsWrite         Permission = "alerts_write"
	PermSearchAcrossCases   Permission = "search_across_cases"
	PermCustomersRead       Permission = "customers_read"
	PermCustomersWrite      Permission = "customers_write"
	PermActivitiesRead      Permission = "activities_read"
	PermAllActivitiesRead   Permission = "all_activities_read"
	PermServerSettingsRead  Permission = "server_settings_read"
	PermServerSettingsWrite Permission = "server_settings_write"
	PermReadUsers           Permission = "read_users"
	PermManageUsers         Permission = "manage_users"
)

// Catalog is the closed set of recognized permissions. Grants outside
// the catalog are rejected at write time.
var Catalog = map[Permission]bool{
	PermStandardUser:        true,
	PermServerAdministrator: true,
	PermAlertsRead:          true,
	PermAlertsWrite:         true,
	PermSearchAcrossCases:   true,
	PermCustomersRead:       true,
	PermCustomersWrite:      true,
	PermActivitiesRead:      true,
	PermAllActivitiesRead:   true,
	PermServerSettingsRead:  true,
	PermServerSettingsWrite: true,
	PermReadUsers:           true,
	PermManageUsers:         true,
}

// ParsePermission validates a permission name against the catalog
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !Catalog[p] {
		return "", fmt.Errorf("unknown permission: %q", s)
	}
	return p, nil
}

// PermissionSet is an explicit set of permissions
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether the set contains p
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the set contains at least one of the given permissions
func (s PermissionSet) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Add inserts p into the set
func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

// Clone returns an independent copy of the set
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Union merges other into a new set, leaving both inputs unchanged
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Equal reports whether both sets contain exactly the same permissions
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Slice returns the permissions in sorted order, for stable serialization
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted permission names
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func (s PermissionSet) String() string {
	return strings.Join(s.Strings(), ",")
}

// ParsePermissionSet parses a comma-separated permission list, rejecting
// names outside the catalog. An empty string yields an empty set.
func ParsePermissionSet(s string) (PermissionSet, error) {
	out := make(PermissionSet)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		p, err := ParsePermission(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out.Add(p)
	}
	return out, nil
}
