package firepads

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HasAccess reports whether the actor may open the firepad: admins
// always may, owners may, collaborators may, everyone else may not.
// The predicate fails closed: any internal fault is logged and denied
// rather than propagated. A missing firepad is a denial, not an error.
func (s *Service) HasAccess(ctx context.Context, actor Actor, firepadID int64) bool {
	granted, err := s.resolveAccess(ctx, actor, firepadID)
	if err != nil {
		s.logError(opHasAccess, "resolution_failed", err,
			zap.Int64("firepad_id", firepadID),
			zap.Int64("user_id", actor.ID))
		return false
	}
	return granted
}

// IsOwner reports whether the actor is an admin or the firepad's owner.
// Like HasAccess it fails closed on internal faults.
func (s *Service) IsOwner(ctx context.Context, actor Actor, firepadID int64) bool {
	isAdmin, err := s.roles.IsAdmin(ctx, actor.Username)
	if err != nil {
		s.logError(opHasAccess, "role_lookup_failed", err, zap.String("username", actor.Username))
		return false
	}
	if isAdmin {
		return true
	}

	ownerID, found, err := s.padOwner(ctx, firepadID)
	if err != nil {
		s.logError(opHasAccess, "firepad_select_failed", err, zap.Int64("firepad_id", firepadID))
		return false
	}
	return found && ownerID == actor.ID
}

// IsCollaborator reports whether a Collab row links the user to the
// firepad. A firepad with zero collaborators yields false, not an error.
func (s *Service) IsCollaborator(ctx context.Context, firepadID, userID int64) (bool, error) {
	var matches int64
	if err := s.db.WithContext(ctx).
		Model(&Collab{}).
		Where("firepad_id = ? AND user_id = ?", firepadID, userID).
		Count(&matches).
		Error; err != nil {
		return false, newServiceError(opHasAccess, "collab_count_failed", err)
	}
	return matches > 0, nil
}

// resolveAccess evaluates the grant chain in order: admin role, then
// ownership, then collaborator membership.
func (s *Service) resolveAccess(ctx context.Context, actor Actor, firepadID int64) (bool, error) {
	isAdmin, err := s.roles.IsAdmin(ctx, actor.Username)
	if err != nil {
		return false, newServiceError(opHasAccess, "role_lookup_failed", err)
	}
	if isAdmin {
		return true, nil
	}

	ownerID, found, err := s.padOwner(ctx, firepadID)
	if err != nil {
		return false, newServiceError(opHasAccess, "firepad_select_failed", err)
	}
	if found && ownerID == actor.ID {
		return true, nil
	}

	return s.IsCollaborator(ctx, firepadID, actor.ID)
}

// padOwner resolves the owner id of a firepad. A missing firepad is
// reported through the found flag, not an error.
func (s *Service) padOwner(ctx context.Context, firepadID int64) (int64, bool, error) {
	var pad Firepad
	err := s.db.WithContext(ctx).Take(&pad, firepadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pad.OwnerID, true, nil
}
