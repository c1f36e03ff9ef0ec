package firepads

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAssignsIDImmediately(t *testing.T) {
	service, db := newTestService(t, nil, nil)

	pad := mustCreatePad(t, service, 5)
	if pad.ID == 0 {
		t.Fatalf("expected assigned id on returned record")
	}
	if pad.OwnerID != 5 {
		t.Fatalf("expected owner id 5, got %d", pad.OwnerID)
	}
	if pad.RealtimeKey == "" {
		t.Fatalf("expected realtime key to be assigned")
	}
	if pad.Timestamp.IsZero() {
		t.Fatalf("expected creation timestamp to be set")
	}

	var stored Firepad
	if err := db.Take(&stored, pad.ID).Error; err != nil {
		t.Fatalf("failed to fetch pad by returned id: %v", err)
	}
	if stored.OwnerID != 5 {
		t.Fatalf("stored owner mismatch: %d", stored.OwnerID)
	}
}

func TestAddCollaboratorAuthorization(t *testing.T) {
	service, db := newTestService(t, nil, nil)
	pad := mustCreatePad(t, service, 5)

	owner := Actor{ID: 5, Username: "teacher"}
	admin := Actor{ID: 99, Username: "admin"}
	stranger := Actor{ID: 7, Username: "stranger"}

	if _, err := service.AddCollaborator(context.Background(), stranger, 10, pad.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for stranger, got %v", err)
	}
	if got := collabCount(t, db, pad.ID, 0); got != 0 {
		t.Fatalf("expected no collab rows after denied add, got %d", got)
	}

	result, err := service.AddCollaborator(context.Background(), owner, 10, pad.ID)
	if err != nil {
		t.Fatalf("owner add failed: %v", err)
	}
	if result != AddResultAdded {
		t.Fatalf("expected added result, got %s", result)
	}

	result, err = service.AddCollaborator(context.Background(), admin, 11, pad.ID)
	if err != nil {
		t.Fatalf("admin add failed: %v", err)
	}
	if result != AddResultAdded {
		t.Fatalf("expected added result for admin, got %s", result)
	}
	if got := collabCount(t, db, pad.ID, 0); got != 2 {
		t.Fatalf("expected 2 collab rows, got %d", got)
	}
}

func TestAddCollaboratorOwnerIsNoOp(t *testing.T) {
	service, db := newTestService(t, nil, nil)
	pad := mustCreatePad(t, service, 5)
	owner := Actor{ID: 5, Username: "teacher"}

	result, err := service.AddCollaborator(context.Background(), owner, 5, pad.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != AddResultAlreadyOwner {
		t.Fatalf("expected already_owner result, got %s", result)
	}
	if got := collabCount(t, db, pad.ID, 5); got != 0 {
		t.Fatalf("expected no redundant owner collab row, got %d", got)
	}
}

func TestAddCollaboratorAllowsDuplicates(t *testing.T) {
	service, db := newTestService(t, nil, nil)
	pad := mustCreatePad(t, service, 5)
	owner := Actor{ID: 5, Username: "teacher"}

	for i := 0; i < 2; i++ {
		if _, err := service.AddCollaborator(context.Background(), owner, 10, pad.ID); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}
	if got := collabCount(t, db, pad.ID, 10); got != 2 {
		t.Fatalf("expected duplicate rows to accumulate, got %d", got)
	}
}

func TestAddClassRequiresAdmin(t *testing.T) {
	classRoster := &stubRoster{enrollment: map[int64][]int64{3: {21, 22, 23}}}
	service, db := newTestService(t, nil, classRoster)
	pad := mustCreatePad(t, service, 5)
	owner := Actor{ID: 5, Username: "teacher"}

	if _, err := service.AddClass(context.Background(), owner, 3, pad.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for non-admin owner, got %v", err)
	}
	if got := collabCount(t, db, pad.ID, 0); got != 0 {
		t.Fatalf("expected no rows after denied class add, got %d", got)
	}
}

func TestAddClassInsertsFullRoster(t *testing.T) {
	classRoster := &stubRoster{enrollment: map[int64][]int64{3: {21, 22, 23}}}
	service, db := newTestService(t, nil, classRoster)
	pad := mustCreatePad(t, service, 5)
	admin := Actor{ID: 99, Username: "admin"}

	added, err := service.AddClass(context.Background(), admin, 3, pad.ID)
	if err != nil {
		t.Fatalf("class add failed: %v", err)
	}
	if added != 3 {
		t.Fatalf("expected 3 rows added, got %d", added)
	}
	for _, studentID := range []int64{21, 22, 23} {
		if got := collabCount(t, db, pad.ID, studentID); got != 1 {
			t.Fatalf("expected one collab row for student %d, got %d", studentID, got)
		}
		student := Actor{ID: studentID, Username: "student"}
		if !service.HasAccess(context.Background(), student, pad.ID) {
			t.Fatalf("expected student %d to gain access", studentID)
		}
	}
}

func TestAddClassEmptyRoster(t *testing.T) {
	classRoster := &stubRoster{enrollment: map[int64][]int64{}}
	service, db := newTestService(t, nil, classRoster)
	pad := mustCreatePad(t, service, 5)
	admin := Actor{ID: 99, Username: "admin"}

	added, err := service.AddClass(context.Background(), admin, 8, pad.ID)
	if err != nil {
		t.Fatalf("unexpected error for empty roster: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected zero rows added, got %d", added)
	}
	if got := collabCount(t, db, pad.ID, 0); got != 0 {
		t.Fatalf("expected no rows, got %d", got)
	}
}

func TestRemoveCollaboratorRequiresExactlyOneMatch(t *testing.T) {
	service, db := newTestService(t, nil, nil)
	pad := mustCreatePad(t, service, 5)
	owner := Actor{ID: 5, Username: "teacher"}

	err := service.RemoveCollaborator(context.Background(), owner, 10, pad.ID)
	if !errors.Is(err, ErrCollaboratorNotFound) {
		t.Fatalf("expected collaborator not found, got %v", err)
	}

	if _, err := service.AddCollaborator(context.Background(), owner, 10, pad.ID); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := service.RemoveCollaborator(context.Background(), owner, 10, pad.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if got := collabCount(t, db, pad.ID, 10); got != 0 {
		t.Fatalf("expected row removed, got %d", got)
	}

	for i := 0; i < 2; i++ {
		if _, err := service.AddCollaborator(context.Background(), owner, 10, pad.ID); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}
	err = service.RemoveCollaborator(context.Background(), owner, 10, pad.ID)
	if !errors.Is(err, ErrAmbiguousCollaborator) {
		t.Fatalf("expected ambiguous collaborator, got %v", err)
	}
	if got := collabCount(t, db, pad.ID, 10); got != 2 {
		t.Fatalf("ambiguous removal must not change rows, got %d", got)
	}
}

func TestRemoveCollaboratorDeniedLeavesRows(t *testing.T) {
	service, db := newTestService(t, nil, nil)
	pad := mustCreatePad(t, service, 5)
	owner := Actor{ID: 5, Username: "teacher"}
	stranger := Actor{ID: 7, Username: "stranger"}

	if _, err := service.AddCollaborator(context.Background(), owner, 10, pad.ID); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	err := service.RemoveCollaborator(context.Background(), stranger, 10, pad.ID)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if got := collabCount(t, db, pad.ID, 10); got != 1 {
		t.Fatalf("denied removal must not change rows, got %d", got)
	}
}

func TestDeleteCascadesCollabRows(t *testing.T) {
	service, db := newTestService(t, nil, nil)
	pad := mustCreatePad(t, service, 5)
	owner := Actor{ID: 5, Username: "teacher"}

	for _, userID := range []int64{10, 11} {
		if _, err := service.AddCollaborator(context.Background(), owner, userID, pad.ID); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	if err := service.Delete(context.Background(), owner, pad.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if got := collabCount(t, db, pad.ID, 0); got != 0 {
		t.Fatalf("expected no collab rows after delete, got %d", got)
	}
	var padCount int64
	if err := db.Model(&Firepad{}).Where("id = ?", pad.ID).Count(&padCount).Error; err != nil {
		t.Fatalf("failed to count pads: %v", err)
	}
	if padCount != 0 {
		t.Fatalf("expected pad row removed")
	}

	resolved, err := service.Owner(context.Background(), pad.ID)
	if err != nil {
		t.Fatalf("owner lookup after delete must not error: %v", err)
	}
	if resolved != nil {
		t.Fatalf("expected nil owner after delete, got %+v", resolved)
	}
}

func TestDeleteMissingPad(t *testing.T) {
	service, _ := newTestService(t, nil, nil)
	admin := Actor{ID: 99, Username: "admin"}
	stranger := Actor{ID: 7, Username: "stranger"}

	if err := service.Delete(context.Background(), admin, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for admin, got %v", err)
	}
	if err := service.Delete(context.Background(), stranger, 404); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for stranger, got %v", err)
	}
}

func TestPurgeUserRemovesAllRecords(t *testing.T) {
	service, db := newTestService(t, nil, nil)

	departing := Actor{ID: 5, Username: "teacher"}
	other := Actor{ID: 6, Username: "colleague"}
	admin := Actor{ID: 99, Username: "admin"}

	ownedPad := mustCreatePad(t, service, departing.ID)
	otherPad := mustCreatePad(t, service, other.ID)

	// Departing user collaborates on the colleague's pad and has
	// collaborators on their own.
	if _, err := service.AddCollaborator(context.Background(), admin, departing.ID, otherPad.ID); err != nil {
		t.Fatalf("seed collab failed: %v", err)
	}
	if _, err := service.AddCollaborator(context.Background(), departing, 10, ownedPad.ID); err != nil {
		t.Fatalf("seed collab failed: %v", err)
	}

	if err := service.PurgeUser(context.Background(), departing.ID); err != nil {
		t.Fatalf("purge failed: %v", err)
	}

	if got := collabCount(t, db, 0, departing.ID); got != 0 {
		t.Fatalf("expected no collab rows naming departing user, got %d", got)
	}
	if got := collabCount(t, db, ownedPad.ID, 0); got != 0 {
		t.Fatalf("expected no collab rows on formerly owned pad, got %d", got)
	}
	var ownedCount int64
	if err := db.Model(&Firepad{}).Where("owner_id = ?", departing.ID).Count(&ownedCount).Error; err != nil {
		t.Fatalf("failed to count pads: %v", err)
	}
	if ownedCount != 0 {
		t.Fatalf("expected no pads owned by departing user, got %d", ownedCount)
	}

	// The colleague's pad survives.
	var survivorCount int64
	if err := db.Model(&Firepad{}).Where("id = ?", otherPad.ID).Count(&survivorCount).Error; err != nil {
		t.Fatalf("failed to count pads: %v", err)
	}
	if survivorCount != 1 {
		t.Fatalf("expected colleague pad to survive")
	}

	// Re-running on already-clean state must not error.
	if err := service.PurgeUser(context.Background(), departing.ID); err != nil {
		t.Fatalf("re-run purge failed: %v", err)
	}
}
