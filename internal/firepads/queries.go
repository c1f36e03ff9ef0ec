package firepads

import (
	"context"
	"errors"

	"github.com/classpadhq/classpad/backend/internal/roster"
	"gorm.io/gorm"
)

// CollaboratorEntry pairs a Collab row with the resolved user identity.
type CollaboratorEntry struct {
	Collab Collab
	User   roster.User
}

// PadView is a firepad annotated with its owner and collaborator identities.
type PadView struct {
	Firepad       Firepad
	Owner         *roster.User
	Collaborators []CollaboratorEntry
}

// CollaborationView is the collaborator-side counterpart of PadView,
// keyed by the Collab row granting the viewer access.
type CollaborationView struct {
	Collab        Collab
	Firepad       Firepad
	Owner         *roster.User
	Collaborators []CollaboratorEntry
}

// Owner resolves the owning user of a firepad. It returns (nil, nil)
// when the firepad or its owner cannot be resolved; an error means the
// store itself failed.
func (s *Service) Owner(ctx context.Context, firepadID int64) (*roster.User, error) {
	ownerID, found, err := s.padOwner(ctx, firepadID)
	if err != nil {
		return nil, newServiceError(opOwner, "firepad_select_failed", err)
	}
	if !found {
		return nil, nil
	}

	var owner roster.User
	err = s.db.WithContext(ctx).Take(&owner, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newServiceError(opOwner, "user_select_failed", err)
	}
	return &owner, nil
}

// Collaborators resolves every Collab row for the firepad joined with
// user identity. Zero collaborators is a valid empty result. Collab
// rows whose user no longer exists are omitted.
func (s *Service) Collaborators(ctx context.Context, firepadID int64) ([]CollaboratorEntry, error) {
	var collabs []Collab
	if err := s.db.WithContext(ctx).
		Where("firepad_id = ?", firepadID).
		Find(&collabs).
		Error; err != nil {
		return nil, newServiceError(opCollaborators, "collab_select_failed", err)
	}
	return s.joinUsers(ctx, opCollaborators, collabs)
}

// Owned assembles the "firepads I own" view: one entry per firepad owned
// by userID, each with the resolved owner and collaborator identities.
// Ordering is not significant.
func (s *Service) Owned(ctx context.Context, userID int64) ([]PadView, error) {
	var pads []Firepad
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Find(&pads).
		Error; err != nil {
		return nil, newServiceError(opOwned, "firepad_select_failed", err)
	}

	var owner *roster.User
	var user roster.User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if err == nil {
		owner = &user
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opOwned, "user_select_failed", err)
	}

	views := make([]PadView, 0, len(pads))
	for _, pad := range pads {
		entries, err := s.Collaborators(ctx, pad.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, PadView{
			Firepad:       pad,
			Owner:         owner,
			Collaborators: entries,
		})
	}
	return views, nil
}

// Collaborating assembles the "firepads I collaborate on" view: one
// entry per Collab row naming userID. Collab rows whose firepad no
// longer exists are omitted.
func (s *Service) Collaborating(ctx context.Context, userID int64) ([]CollaborationView, error) {
	var collabs []Collab
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&collabs).
		Error; err != nil {
		return nil, newServiceError(opCollaborating, "collab_select_failed", err)
	}

	views := make([]CollaborationView, 0, len(collabs))
	for _, collab := range collabs {
		var pad Firepad
		err := s.db.WithContext(ctx).Take(&pad, collab.FirepadID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, newServiceError(opCollaborating, "firepad_select_failed", err)
		}

		owner, err := s.Owner(ctx, pad.ID)
		if err != nil {
			return nil, err
		}
		entries, err := s.Collaborators(ctx, pad.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, CollaborationView{
			Collab:        collab,
			Firepad:       pad,
			Owner:         owner,
			Collaborators: entries,
		})
	}
	return views, nil
}

// joinUsers resolves the user identity for each Collab row, dropping
// rows whose user cannot be found.
func (s *Service) joinUsers(ctx context.Context, operation string, collabs []Collab) ([]CollaboratorEntry, error) {
	entries := make([]CollaboratorEntry, 0, len(collabs))
	if len(collabs) == 0 {
		return entries, nil
	}

	userIDs := make([]int64, 0, len(collabs))
	for _, collab := range collabs {
		userIDs = append(userIDs, collab.UserID)
	}

	var users []roster.User
	if err := s.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&users).
		Error; err != nil {
		return nil, newServiceError(operation, "user_select_failed", err)
	}

	byID := make(map[int64]roster.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	for _, collab := range collabs {
		user, ok := byID[collab.UserID]
		if !ok {
			continue
		}
		entries = append(entries, CollaboratorEntry{Collab: collab, User: user})
	}
	return entries, nil
}
