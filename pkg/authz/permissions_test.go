package authz

import (
	"testing"
)

func TestParsePermission(t *testing.T) {
	if _, err := ParsePermission("manage_users"); err != nil {
		t.Errorf("ParsePermission(manage_users) error = %v", err)
	}
	if _, err := ParsePermission("rule_the_world"); err == nil {
		t.Error("ParsePermission() accepted a name outside the catalog")
	}
	if _, err := ParsePermission(""); err == nil {
		t.Error("ParsePermission() accepted an empty name")
	}
}

func TestPermissionSet_Union(t *testing.T) {
	a := NewPermissionSet(PermAlertsRead, PermActivitiesRead)
	b := NewPermissionSet(PermAlertsRead, PermManageUsers)

	u := a.Union(b)
	want := NewPermissionSet(PermAlertsRead, PermActivitiesRead, PermManageUsers)
	if !u.Equal(want) {
		t.Errorf("Union() = %v, want %v", u, want)
	}

	// Inputs unchanged
	if len(a) != 2 || len(b) != 2 {
		t.Error("Union() mutated an input set")
	}
}

func TestPermissionSet_HasAny(t *testing.T) {
	s := NewPermissionSet(PermAllActivitiesRead)

	if !s.HasAny(PermActivitiesRead, PermAllActivitiesRead) {
		t.Error("HasAny() missed a member alternative")
	}
	if s.HasAny(PermActivitiesRead, PermManageUsers) {
		t.Error("HasAny() matched with no member alternative")
	}
	if s.HasAny() {
		t.Error("HasAny() with no alternatives should be false")
	}
}

func TestPermissionSet_StringRoundTrip(t *testing.T) {
	orig := NewPermissionSet(PermServerSettingsRead, PermAlertsWrite, PermStandardUser)

	parsed, err := ParsePermissionSet(orig.String())
	if err != nil {
		t.Fatalf("ParsePermissionSet() error = %v", err)
	}
	if !parsed.Equal(orig) {
		t.Errorf("round trip = %v, want %v", parsed, orig)
	}

	empty, err := ParsePermissionSet("")
	if err != nil {
		t.Fatalf("ParsePermissionSet(\"\") error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ParsePermissionSet(\"\") = %v, want empty", empty)
	}

	if _, err := ParsePermissionSet("alerts_read,bogus"); err == nil {
		t.Error("ParsePermissionSet() accepted a name outside the catalog")
	}
}

func TestPermissionSet_SliceIsSorted(t *testing.T) {
	s := NewPermissionSet(PermServerSettingsWrite, PermAlertsRead, PermManageUsers)
	slice := s.Slice()
	for i := 1; i < len(slice); i++ {
		if slice[i-1] >= slice[i] {
			t.Errorf("Slice() not sorted: %v", slice)
		}
	}
}

func TestAccessLevel_AtLeast(t *testing.T) {
	tests := []struct {
		level   AccessLevel
		minimum AccessLevel
		want    bool
	}{
		{AccessNone, AccessNone, true},
		{AccessNone, AccessReadOnly, false},
		{AccessReadOnly, AccessReadOnly, true},
		{AccessReadOnly, AccessFullAccess, false},
		{AccessFullAccess, AccessReadOnly, true},
		{AccessFullAccess, AccessFullAccess, true},
		{AccessDeny, AccessNone, false},
		{AccessDeny, AccessReadOnly, false},
		{AccessDeny, AccessFullAccess, false},
	}

	for _, tt := range tests {
		if got := tt.level.AtLeast(tt.minimum); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.level, tt.minimum, got, tt.want)
		}
	}
}

func TestParseAccessLevel(t *testing.T) {
	for _, valid := range []string{"none", "read_only", "full_access", "deny"} {
		if _, err := ParseAccessLevel(valid); err != nil {
			t.Errorf("ParseAccessLevel(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseAccessLevel("admin"); err == nil {
		t.Error("ParseAccessLevel() accepted an unknown level")
	}
}
