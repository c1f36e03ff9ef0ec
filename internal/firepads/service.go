package firepads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingKeyProvider = errors.New("key provider is required")
	errMissingRoleService = errors.New("role service is required")
	errMissingClassRoster = errors.New("class roster is required")
	noOpLogger            = zap.NewNop()
)

var (
	// ErrPermissionDenied indicates the actor is neither admin nor owner
	// of the firepad being managed.
	ErrPermissionDenied = errors.New("firepads: permission denied")
	// ErrNotFound indicates the referenced firepad does not exist.
	ErrNotFound = errors.New("firepads: not found")
	// ErrCollaboratorNotFound indicates no Collab row matches the removal target.
	ErrCollaboratorNotFound = errors.New("firepads: collaborator not found")
	// ErrAmbiguousCollaborator indicates more than one Collab row matches
	// the removal target; duplicates must be resolved explicitly.
	ErrAmbiguousCollaborator = errors.New("firepads: ambiguous collaborator")
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "firepads.service.new"
	opCreate             = "firepads.create"
	opAddCollaborator    = "firepads.add_collaborator"
	opAddClass           = "firepads.add_class"
	opRemoveCollaborator = "firepads.remove_collaborator"
	opDelete             = "firepads.delete"
	opPurgeUser          = "firepads.purge_user"
	opHasAccess          = "firepads.has_access"
	opOwned              = "firepads.owned"
	opCollaborating      = "firepads.collaborating"
	opOwner              = "firepads.owner"
	opCollaborators      = "firepads.collaborators"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// RoleService answers the external admin-role lookup.
type RoleService interface {
	IsAdmin(ctx context.Context, username string) (bool, error)
}

// ClassRoster resolves class enrollment from the external class subsystem.
type ClassRoster interface {
	EnrolledUserIDs(ctx context.Context, classID int64) ([]int64, error)
}

// KeyProvider issues opaque keys addressing documents in the external
// realtime backend.
type KeyProvider interface {
	NewKey() (string, error)
}

// ServiceConfig describes the dependencies of the firepad service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Keys     KeyProvider
	Roles    RoleService
	Roster   ClassRoster
	Logger   *zap.Logger
}

// Service implements access control and record management for firepads.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	keys   KeyProvider
	roles  RoleService
	roster ClassRoster
	logger *zap.Logger
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Keys == nil {
		return nil, newServiceError(opServiceNew, "missing_key_provider", errMissingKeyProvider)
	}
	if cfg.Roles == nil {
		return nil, newServiceError(opServiceNew, "missing_role_service", errMissingRoleService)
	}
	if cfg.Roster == nil {
		return nil, newServiceError(opServiceNew, "missing_class_roster", errMissingClassRoster)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		keys:   cfg.Keys,
		roles:  cfg.Roles,
		roster: cfg.Roster,
		logger: logger,
	}, nil
}

// Create inserts a new firepad owned by ownerID and returns the
// persisted record with its assigned id.
func (s *Service) Create(ctx context.Context, ownerID int64) (Firepad, error) {
	key, err := s.keys.NewKey()
	if err != nil {
		s.logError(opCreate, "key_generation_failed", err, zap.Int64("owner_id", ownerID))
		return Firepad{}, newServiceError(opCreate, "key_generation_failed", err)
	}

	pad := Firepad{
		Timestamp:   s.clock().UTC(),
		OwnerID:     ownerID,
		RealtimeKey: key,
	}
	if err := s.db.WithContext(ctx).Create(&pad).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Int64("owner_id", ownerID))
		return Firepad{}, newServiceError(opCreate, "insert_failed", err)
	}
	return pad, nil
}

// AddResult reports the outcome of AddCollaborator.
type AddResult string

const (
	// AddResultAdded means a new Collab row was inserted.
	AddResultAdded AddResult = "added"
	// AddResultAlreadyOwner means the target owns the firepad and
	// already has access; no row was inserted.
	AddResultAlreadyOwner AddResult = "already_owner"
)

// AddCollaborator grants targetUserID collaborator access to the
// firepad. Only the firepad owner or an admin may add collaborators.
// Adding the owner is a no-op. Repeated adds of the same user insert
// duplicate rows; removal surfaces those as ambiguous.
func (s *Service) AddCollaborator(ctx context.Context, actor Actor, targetUserID, firepadID int64) (AddResult, error) {
	pad, err := s.authorizeManage(ctx, opAddCollaborator, actor, firepadID)
	if err != nil {
		return "", err
	}

	if targetUserID == pad.OwnerID {
		return AddResultAlreadyOwner, nil
	}

	collab := Collab{UserID: targetUserID, FirepadID: firepadID}
	if err := s.db.WithContext(ctx).Create(&collab).Error; err != nil {
		s.logError(opAddCollaborator, "insert_failed", err,
			zap.Int64("firepad_id", firepadID),
			zap.Int64("target_user_id", targetUserID))
		return "", newServiceError(opAddCollaborator, "insert_failed", err)
	}
	return AddResultAdded, nil
}

// AddClass grants every user enrolled in classID collaborator access to
// the firepad in one transaction. Admin only. The roster is inserted as
// returned by the class subsystem; the owner and existing collaborators
// are not filtered out.
func (s *Service) AddClass(ctx context.Context, actor Actor, classID, firepadID int64) (int, error) {
	isAdmin, err := s.roles.IsAdmin(ctx, actor.Username)
	if err != nil {
		s.logError(opAddClass, "role_lookup_failed", err, zap.String("username", actor.Username))
		return 0, newServiceError(opAddClass, "role_lookup_failed", err)
	}
	if !isAdmin {
		return 0, ErrPermissionDenied
	}

	userIDs, err := s.roster.EnrolledUserIDs(ctx, classID)
	if err != nil {
		s.logError(opAddClass, "roster_lookup_failed", err, zap.Int64("class_id", classID))
		return 0, newServiceError(opAddClass, "roster_lookup_failed", err)
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	collabs := make([]Collab, 0, len(userIDs))
	for _, userID := range userIDs {
		collabs = append(collabs, Collab{UserID: userID, FirepadID: firepadID})
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&collabs).Error
	})
	if txErr != nil {
		s.logError(opAddClass, "insert_failed", txErr,
			zap.Int64("class_id", classID),
			zap.Int64("firepad_id", firepadID))
		return 0, newServiceError(opAddClass, "insert_failed", txErr)
	}
	return len(collabs), nil
}

// RemoveCollaborator revokes targetUserID's collaborator access. Only
// the firepad owner or an admin may remove collaborators. Exactly one
// matching Collab row must exist: zero matches is ErrCollaboratorNotFound,
// more than one is ErrAmbiguousCollaborator.
func (s *Service) RemoveCollaborator(ctx context.Context, actor Actor, targetUserID, firepadID int64) error {
	if _, err := s.authorizeManage(ctx, opRemoveCollaborator, actor, firepadID); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var matches []Collab
		if err := tx.
			Where("user_id = ? AND firepad_id = ?", targetUserID, firepadID).
			Find(&matches).
			Error; err != nil {
			return newServiceError(opRemoveCollaborator, "select_failed", err)
		}
		switch len(matches) {
		case 0:
			return ErrCollaboratorNotFound
		case 1:
			if err := tx.Delete(&Collab{}, matches[0].ID).Error; err != nil {
				return newServiceError(opRemoveCollaborator, "delete_failed", err)
			}
			return nil
		default:
			return ErrAmbiguousCollaborator
		}
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrCollaboratorNotFound) && !errors.Is(txErr, ErrAmbiguousCollaborator) {
			s.logError(opRemoveCollaborator, "transaction_failed", txErr,
				zap.Int64("firepad_id", firepadID),
				zap.Int64("target_user_id", targetUserID))
		}
		return txErr
	}
	return nil
}

// Delete removes the firepad and every Collab row referencing it as one
// atomic unit. Only the firepad owner or an admin may delete it.
func (s *Service) Delete(ctx context.Context, actor Actor, firepadID int64) error {
	if _, err := s.authorizeManage(ctx, opDelete, actor, firepadID); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("firepad_id = ?", firepadID).Delete(&Collab{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Firepad{}, firepadID).Error
	})
	if txErr != nil {
		s.logError(opDelete, "transaction_failed", txErr, zap.Int64("firepad_id", firepadID))
		return newServiceError(opDelete, "transaction_failed", txErr)
	}
	return nil
}

// PurgeUser removes every collaboration record for a departing user:
// first the Collab rows naming the user as collaborator, then each
// firepad the user owns together with its Collab rows. Each phase runs
// in its own transaction so the operation can be re-run after a crash
// without erroring on already-cleaned state.
func (s *Service) PurgeUser(ctx context.Context, userID int64) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).Delete(&Collab{}).Error
	}); err != nil {
		s.logError(opPurgeUser, "collab_phase_failed", err, zap.Int64("user_id", userID))
		return newServiceError(opPurgeUser, "collab_phase_failed", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ownedIDs []int64
		if err := tx.Model(&Firepad{}).
			Where("owner_id = ?", userID).
			Pluck("id", &ownedIDs).
			Error; err != nil {
			return err
		}
		if len(ownedIDs) == 0 {
			return nil
		}
		if err := tx.Where("firepad_id IN ?", ownedIDs).Delete(&Collab{}).Error; err != nil {
			return err
		}
		return tx.Where("owner_id = ?", userID).Delete(&Firepad{}).Error
	}); err != nil {
		s.logError(opPurgeUser, "owned_phase_failed", err, zap.Int64("user_id", userID))
		return newServiceError(opPurgeUser, "owned_phase_failed", err)
	}
	return nil
}

// authorizeManage resolves the firepad and verifies the actor may manage
// it (admin or owner). Non-admins are told ErrPermissionDenied even when
// the pad does not exist; admins get ErrNotFound in that case.
func (s *Service) authorizeManage(ctx context.Context, operation string, actor Actor, firepadID int64) (Firepad, error) {
	isAdmin, err := s.roles.IsAdmin(ctx, actor.Username)
	if err != nil {
		s.logError(operation, "role_lookup_failed", err, zap.String("username", actor.Username))
		return Firepad{}, newServiceError(operation, "role_lookup_failed", err)
	}

	var pad Firepad
	err = s.db.WithContext(ctx).Take(&pad, firepadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if isAdmin {
			return Firepad{}, ErrNotFound
		}
		return Firepad{}, ErrPermissionDenied
	}
	if err != nil {
		s.logError(operation, "firepad_select_failed", err, zap.Int64("firepad_id", firepadID))
		return Firepad{}, newServiceError(operation, "firepad_select_failed", err)
	}

	if !isAdmin && pad.OwnerID != actor.ID {
		return Firepad{}, ErrPermissionDenied
	}
	return pad, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("firepad service error", attrs...)
}
