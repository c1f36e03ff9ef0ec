package firepads

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/classpadhq/classpad/backend/internal/roster"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubRoles struct {
	admins map[string]bool
	err    error
}

func (r *stubRoles) IsAdmin(_ context.Context, username string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.admins[username], nil
}

type stubRoster struct {
	enrollment map[int64][]int64
	err        error
}

func (r *stubRoster) EnrolledUserIDs(_ context.Context, classID int64) ([]int64, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.enrollment[classID], nil
}

type sequenceKeyProvider struct {
	next int
}

func (p *sequenceKeyProvider) NewKey() (string, error) {
	p.next++
	return fmt.Sprintf("pad-key-%d", p.next), nil
}

func newTestService(t *testing.T, roles *stubRoles, classes *stubRoster) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:classpad_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&roster.User{}, &Firepad{}, &Collab{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if roles == nil {
		roles = &stubRoles{admins: map[string]bool{"admin": true}}
	}
	if classes == nil {
		classes = &stubRoster{enrollment: map[int64][]int64{}}
	}

	clock := func() time.Time { return time.Unix(1750000000, 0).UTC() }
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock,
		Keys:     &sequenceKeyProvider{},
		Roles:    roles,
		Roster:   classes,
	})
	if err != nil {
		t.Fatalf("failed to construct firepad service: %v", err)
	}

	return service, db
}

func seedUser(t *testing.T, db *gorm.DB, id int64, username string) roster.User {
	t.Helper()
	user := roster.User{ID: id, Username: username}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	return user
}

func mustCreatePad(t *testing.T, service *Service, ownerID int64) Firepad {
	t.Helper()
	pad, err := service.Create(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("failed to create pad: %v", err)
	}
	return pad
}

func collabCount(t *testing.T, db *gorm.DB, firepadID, userID int64) int64 {
	t.Helper()
	var count int64
	query := db.Model(&Collab{})
	if firepadID > 0 {
		query = query.Where("firepad_id = ?", firepadID)
	}
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("failed to count collabs: %v", err)
	}
	return count
}
