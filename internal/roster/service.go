package roster

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrUserNotFound indicates the referenced user does not exist.
var ErrUserNotFound = errors.New("roster: user not found")

// ErrClassNotFound indicates the referenced class does not exist.
var ErrClassNotFound = errors.New("roster: class not found")

// ServiceConfig describes the dependencies for roster lookups.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service resolves users, classes, enrollments, and the admin role.
type Service struct {
	db *gorm.DB
}

// NewService constructs the roster service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("roster: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// IsAdmin reports whether the named user carries the admin role.
// Unknown usernames are not admins.
func (s *Service) IsAdmin(ctx context.Context, username string) (bool, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		Take(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// UserByID resolves a user by primary key.
func (s *Service) UserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UserByUsername resolves a user by login name.
func (s *Service) UserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		Take(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ClassByID resolves a class by primary key.
func (s *Service) ClassByID(ctx context.Context, classID int64) (Class, error) {
	var class Class
	err := s.db.WithContext(ctx).Take(&class, classID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Class{}, ErrClassNotFound
	}
	if err != nil {
		return Class{}, err
	}
	return class, nil
}

// EnrolledUserIDs lists the user ids enrolled in the given class.
func (s *Service) EnrolledUserIDs(ctx context.Context, classID int64) ([]int64, error) {
	var userIDs []int64
	if err := s.db.WithContext(ctx).
		Model(&Enrollment{}).
		Where("class_id = ?", classID).
		Pluck("user_id", &userIDs).
		Error; err != nil {
		return nil, err
	}
	return userIDs, nil
}

// TeacherClasses lists the classes taught by the given user.
func (s *Service) TeacherClasses(ctx context.Context, teacherID int64) ([]Class, error) {
	var classes []Class
	if err := s.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("label ASC").
		Find(&classes).
		Error; err != nil {
		return nil, err
	}
	return classes, nil
}
