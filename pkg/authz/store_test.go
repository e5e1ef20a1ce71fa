package authz

import (
	"context"
	"errors"
	"testing"
)

func TestStore_ReplaceUserPermissions_Atomic(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	addUser(t, db, 1, "alice")

	if err := store.ReplaceUserPermissions(ctx, 1, NewPermissionSet(PermAlertsRead, PermAlertsWrite)); err != nil {
		t.Fatalf("ReplaceUserPermissions() error = %v", err)
	}

	// Replace fully; old rows must be gone
	if err := store.ReplaceUserPermissions(ctx, 1, NewPermissionSet(PermCustomersRead)); err != nil {
		t.Fatalf("ReplaceUserPermissions() error = %v", err)
	}

	perms, err := store.GetUserDirectPermissions(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserDirectPermissions() error = %v", err)
	}
	want := NewPermissionSet(PermCustomersRead)
	if !perms.Equal(want) {
		t.Errorf("permissions after replace = %v, want %v", perms, want)
	}
}

func TestStore_ReplaceUserPermissions_RejectsUnknownPermission(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	err := store.ReplaceUserPermissions(context.Background(), 1, PermissionSet{"made_up": {}})
	var invalid *InvalidGrantStateError
	if !errors.As(err, &invalid) {
		t.Errorf("ReplaceUserPermissions() error = %v, want InvalidGrantStateError", err)
	}
}

func TestStore_SetUserCaseAccess_RejectsUnknownLevel(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	err := store.SetUserCaseAccess(context.Background(), 1, 1, AccessLevel("superuser"), nil)
	var invalid *InvalidGrantStateError
	if !errors.As(err, &invalid) {
		t.Errorf("SetUserCaseAccess() error = %v, want InvalidGrantStateError", err)
	}
}

func TestStore_SetUserCaseAccess_Upserts(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	addUser(t, db, 1, "alice")
	addCase(t, db, 1, "c1")

	if err := store.SetUserCaseAccess(ctx, 1, 1, AccessReadOnly, nil); err != nil {
		t.Fatalf("SetUserCaseAccess() error = %v", err)
	}
	if err := store.SetUserCaseAccess(ctx, 1, 1, AccessFullAccess, nil); err != nil {
		t.Fatalf("SetUserCaseAccess() upsert error = %v", err)
	}

	grants, err := store.ListCaseGrants(ctx, 1)
	if err != nil {
		t.Fatalf("ListCaseGrants() error = %v", err)
	}
	if len(grants.Users) != 1 {
		t.Fatalf("ListCaseGrants() users = %d, want 1", len(grants.Users))
	}
	if grants.Users[0].Level != AccessFullAccess {
		t.Errorf("grant level = %v, want full_access", grants.Users[0].Level)
	}
}

func TestStore_RemoveGrants(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	addUser(t, db, 1, "alice")
	addGroup(t, db, 1, "g")
	addOrg(t, db, 1, "o")
	addCase(t, db, 1, "c1")

	if err := store.SetUserCaseAccess(ctx, 1, 1, AccessReadOnly, nil); err != nil {
		t.Fatalf("SetUserCaseAccess() error = %v", err)
	}
	if err := store.SetGroupCaseAccess(ctx, 1, 1, AccessReadOnly, nil); err != nil {
		t.Fatalf("SetGroupCaseAccess() error = %v", err)
	}
	if err := store.SetOrgCaseAccess(ctx, 1, 1, AccessReadOnly, nil); err != nil {
		t.Fatalf("SetOrgCaseAccess() error = %v", err)
	}

	if err := store.RemoveUserCaseAccess(ctx, 1, 1); err != nil {
		t.Fatalf("RemoveUserCaseAccess() error = %v", err)
	}
	if err := store.RemoveGroupCaseAccess(ctx, 1, 1); err != nil {
		t.Fatalf("RemoveGroupCaseAccess() error = %v", err)
	}
	if err := store.RemoveOrgCaseAccess(ctx, 1, 1); err != nil {
		t.Fatalf("RemoveOrgCaseAccess() error = %v", err)
	}

	grants, err := store.ListCaseGrants(ctx, 1)
	if err != nil {
		t.Fatalf("ListCaseGrants() error = %v", err)
	}
	if len(grants.Users)+len(grants.Groups)+len(grants.Orgs) != 0 {
		t.Errorf("grants remain after removal: %+v", grants)
	}
}

func TestStore_GroupMemberIDs(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	addUser(t, db, 1, "a")
	addUser(t, db, 2, "b")
	addGroup(t, db, 1, "g")
	addGroupMember(t, db, 1, 1)
	addGroupMember(t, db, 1, 2)

	ids, err := store.GroupMemberIDs(ctx, 1)
	if err != nil {
		t.Fatalf("GroupMemberIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("GroupMemberIDs() = %v, want 2 members", ids)
	}
}

func TestStore_PurgeDanglingGrants(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	addUser(t, db, 1, "alice")
	addCase(t, db, 1, "c1")
	if err := store.SetUserCaseAccess(ctx, 1, 1, AccessReadOnly, nil); err != nil {
		t.Fatalf("SetUserCaseAccess() error = %v", err)
	}
	mustExec(t, db, `DELETE FROM cases WHERE id = 1`)

	counts, err := store.CountDanglingGrants(ctx)
	if err != nil {
		t.Fatalf("CountDanglingGrants() error = %v", err)
	}
	if counts.Total() != 1 {
		t.Fatalf("CountDanglingGrants() total = %d, want 1", counts.Total())
	}

	purged, err := store.PurgeDanglingGrants(ctx)
	if err != nil {
		t.Fatalf("PurgeDanglingGrants() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("PurgeDanglingGrants() = %d, want 1", purged)
	}

	counts, err = store.CountDanglingGrants(ctx)
	if err != nil {
		t.Fatalf("CountDanglingGrants() error = %v", err)
	}
	if counts.Total() != 0 {
		t.Errorf("dangling grants remain after purge: %+v", counts)
	}
}
