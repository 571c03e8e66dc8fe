package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"showmates_server/models"
)

// UserProfileService owns profile reads and writes, including the show
// reverse index kept in sync with each user's favorite set.
type UserProfileService struct {
	Store DocumentStore
}

// updatableProfileFields is the allowlist for generic profile updates.
// Favorites go through UpdateFavorites so the reverse index stays in
// sync; cooldown and matched sets belong to the matchmaking commit.
var updatableProfileFields = map[string]bool{
	"name":             true,
	"gender":           true,
	"genderPreference": true,
	"region":           true,
	"latitude":         true,
	"longitude":        true,
	"photos":           true,
}

// AddUserProfile creates a new user profile and registers the user in
// the reverse index of every initial favorite show.
func (ups *UserProfileService) AddUserProfile(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error) {
	if profile.UserID == "" {
		return nil, fmt.Errorf("userId is required: %w", ErrInvalidInput)
	}
	profile.FavoriteShows = normalizeShowIDs(profile.FavoriteShows)

	err := ups.Store.PutItem(ctx, models.UserProfilesTable, profile, IfAttrNotExists("userId"))
	if err != nil {
		if errors.Is(err, ErrConditionFailed) {
			return nil, fmt.Errorf("profile %s already exists: %w", profile.UserID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	for _, showID := range profile.FavoriteShows {
		if err := ups.addShowFollower(ctx, showID, profile.UserID); err != nil {
			log.Printf("❌ Failed to index show %s for new user %s: %v", showID, profile.UserID, err)
		}
	}
	return &profile, nil
}

// GetUserProfile retrieves a user profile by ID
func (ups *UserProfileService) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := ups.Store.GetItem(ctx, models.UserProfilesTable, Key{"userId": userID}, &profile); err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}
	return &profile, nil
}

// UpdateUserProfile applies a field-level update to allowlisted profile
// attributes and returns the fresh profile.
func (ups *UserProfileService) UpdateUserProfile(ctx context.Context, userID string, updates map[string]interface{}) (*models.UserProfile, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updates given: %w", ErrInvalidInput)
	}

	fields := make([]string, 0, len(updates))
	for field := range updates {
		if !updatableProfileFields[field] {
			return nil, fmt.Errorf("field '%s' is not updatable: %w", field, ErrInvalidInput)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	muts := make([]Mutation, 0, len(fields))
	for _, field := range fields {
		muts = append(muts, Set(field, updates[field]))
	}

	if err := ups.applyProfileUpdate(ctx, userID, muts); err != nil {
		return nil, err
	}
	return ups.GetUserProfile(ctx, userID)
}

// UpdateFavorites replaces the user's favorite set and mirrors the
// membership changes into the show reverse index. Index updates are
// idempotent set operations, so re-running a partially applied sync
// converges.
func (ups *UserProfileService) UpdateFavorites(ctx context.Context, userID string, favoriteShowIDs []string) (*models.UserProfile, error) {
	profile, err := ups.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	oldSet := map[string]struct{}{}
	for _, showID := range profile.FavoriteShows {
		oldSet[showID] = struct{}{}
	}
	newShows := normalizeShowIDs(favoriteShowIDs)
	newSet := map[string]struct{}{}
	for _, showID := range newShows {
		newSet[showID] = struct{}{}
	}

	var added, removed []string
	for _, showID := range newShows {
		if _, ok := oldSet[showID]; !ok {
			added = append(added, showID)
		}
	}
	for _, showID := range profile.FavoriteShows {
		if _, ok := newSet[showID]; !ok {
			removed = append(removed, showID)
		}
	}

	// An attribute may appear once per update, so additions and
	// removals land as two idempotent writes.
	if len(added) > 0 {
		if err := ups.applyProfileUpdate(ctx, userID, []Mutation{AddToSet("favoriteShows", added...)}); err != nil {
			return nil, err
		}
	}
	if len(removed) > 0 {
		if err := ups.applyProfileUpdate(ctx, userID, []Mutation{RemoveFromSet("favoriteShows", removed...)}); err != nil {
			return nil, err
		}
	}

	for _, showID := range added {
		if err := ups.addShowFollower(ctx, showID, userID); err != nil {
			return nil, err
		}
	}
	for _, showID := range removed {
		if err := ups.removeShowFollower(ctx, showID, userID); err != nil {
			return nil, err
		}
	}

	return ups.GetUserProfile(ctx, userID)
}

// RegisterPushToken stores (or with an empty token clears) the user's
// push delivery token.
func (ups *UserProfileService) RegisterPushToken(ctx context.Context, userID, token string) error {
	mut := Set("pushToken", token)
	if token == "" {
		mut = RemoveAttr("pushToken")
	}
	return ups.applyProfileUpdate(ctx, userID, []Mutation{mut})
}

// BlockUser adds target to the caller's blocked set, removing them from
// all future search results.
func (ups *UserProfileService) BlockUser(ctx context.Context, userID, targetID string) error {
	if targetID == "" || targetID == userID {
		return fmt.Errorf("invalid block target: %w", ErrInvalidInput)
	}
	return ups.applyProfileUpdate(ctx, userID, []Mutation{AddToSet("blocked", targetID)})
}

// UnblockUser removes target from the caller's blocked set.
func (ups *UserProfileService) UnblockUser(ctx context.Context, userID, targetID string) error {
	if targetID == "" || targetID == userID {
		return fmt.Errorf("invalid block target: %w", ErrInvalidInput)
	}
	return ups.applyProfileUpdate(ctx, userID, []Mutation{RemoveFromSet("blocked", targetID)})
}

// applyProfileUpdate runs mutations against an existing profile. The
// existence guard keeps an update from upserting a ghost profile.
func (ups *UserProfileService) applyProfileUpdate(ctx context.Context, userID string, muts []Mutation) error {
	err := ups.Store.UpdateItem(ctx, models.UserProfilesTable,
		Key{"userId": userID}, muts, IfAttrExists("userId"))
	if err != nil {
		if errors.Is(err, ErrConditionFailed) {
			return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("failed to update profile %s: %w", userID, err)
	}
	return nil
}

func (ups *UserProfileService) addShowFollower(ctx context.Context, showID, userID string) error {
	err := ups.Store.UpdateItem(ctx, models.ShowFollowersTable,
		Key{"showId": showID},
		[]Mutation{AddToSet("userIds", userID)},
	)
	if err != nil {
		return fmt.Errorf("failed to index show %s: %w", showID, err)
	}
	return nil
}

// removeShowFollower drops the user from a show's follower entry and
// deletes the entry once its follower set is empty. The delete is
// conditioned on the set still being gone, so a concurrent follow wins.
func (ups *UserProfileService) removeShowFollower(ctx context.Context, showID, userID string) error {
	err := ups.Store.UpdateItem(ctx, models.ShowFollowersTable,
		Key{"showId": showID},
		[]Mutation{RemoveFromSet("userIds", userID)},
	)
	if err != nil {
		return fmt.Errorf("failed to unindex show %s: %w", showID, err)
	}

	err = ups.Store.Commit(ctx, []WriteOp{
		DeleteOp(models.ShowFollowersTable, Key{"showId": showID}, IfAttrNotExists("userIds")),
	})
	if err != nil && !errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("failed to clean up empty show entry %s: %w", showID, err)
	}
	return nil
}
