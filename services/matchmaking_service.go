package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"showmates_server/models"
	"showmates_server/utils"
)

// MatchmakingService runs the shared-show search pipeline: gate the
// attempt on the cooldown, refresh the show reverse index, collect
// candidates from it, apply mutual preference checks, then commit the
// new matches and the advanced cooldown state in one transaction.
type MatchmakingService struct {
	Store DocumentStore
	Push  *PushService
}

// NewMatch is one entry of a search response.
type NewMatch struct {
	UserID      string `json:"userId"`
	MatchID     string `json:"matchId"`
	Level       string `json:"level"`
	SharedShows int    `json:"sharedShows"`
	Name        string `json:"name,omitempty"`
	Photo       string `json:"photo,omitempty"`
}

// SearchResult is the search response payload.
type SearchResult struct {
	NewMatches            []NewMatch       `json:"newMatches"`
	NextAllowedSearchTime models.Timestamp `json:"nextAllowedSearchTime"`
}

// MatchSummary is one entry of a match listing, the stored match
// enriched with the counterpart's display fields.
type MatchSummary struct {
	MatchID     string           `json:"matchId"`
	UserID      string           `json:"userId"`
	Name        string           `json:"name,omitempty"`
	Photo       string           `json:"photo,omitempty"`
	Level       string           `json:"level"`
	SharedShows int              `json:"sharedShows"`
	MatchedAt   models.Timestamp `json:"matchedAt"`
}

// acceptedCandidate is a candidate that passed every preference check.
type acceptedCandidate struct {
	Profile models.UserProfile
	Shared  int
	Level   string
}

// Search runs one search attempt for userID against the given favorite
// shows. The cooldown gate runs before any index or candidate work; a
// denied attempt does nothing but report the remaining wait.
func (ms *MatchmakingService) Search(ctx context.Context, userID string, favoriteShowIDs []string) (*SearchResult, error) {
	showIDs := normalizeShowIDs(favoriteShowIDs)
	if len(showIDs) == 0 {
		return nil, fmt.Errorf("favorite shows are required: %w", ErrInvalidInput)
	}

	var requester models.UserProfile
	if err := ms.Store.GetItem(ctx, models.UserProfilesTable, Key{"userId": userID}, &requester); err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}

	decision := EvaluateCooldown(CooldownState{
		LastSearchAt: requester.LastSearchAt,
		SearchCount:  requester.SearchCount,
	}, time.Now())
	if !decision.Allowed {
		return nil, &CooldownActiveError{RetryAfter: decision.RetryAfter}
	}

	if err := ms.RefreshShowIndex(ctx, userID, showIDs); err != nil {
		return nil, err
	}

	counts, err := ms.FilterCandidates(ctx, showIDs, requester.ExcludedUserIDs())
	if err != nil {
		return nil, err
	}

	accepted, err := ms.MatchPreferences(ctx, &requester, counts)
	if err != nil {
		return nil, err
	}
	if len(accepted) > models.MaxMatchesPerSearch {
		accepted = accepted[:models.MaxMatchesPerSearch]
	}

	matches, err := ms.commitMatches(ctx, &requester, accepted, decision)
	if err != nil {
		return nil, err
	}

	ms.notifyMatches(ctx, &requester, accepted, matches)

	newMatches := make([]NewMatch, 0, len(accepted))
	for i, candidate := range accepted {
		newMatches = append(newMatches, NewMatch{
			UserID:      candidate.Profile.UserID,
			MatchID:     matches[i].MatchID,
			Level:       candidate.Level,
			SharedShows: candidate.Shared,
			Name:        candidate.Profile.Name,
			Photo:       firstPhoto(candidate.Profile.Photos),
		})
	}
	log.Printf("✅ Search for user %s produced %d new matches", userID, len(newMatches))
	return &SearchResult{NewMatches: newMatches, NextAllowedSearchTime: decision.NextAllowed}, nil
}

// RefreshShowIndex adds the user to the follower entry of every given
// show. Additions are set unions, so concurrent refreshes are safe to
// repeat.
func (ms *MatchmakingService) RefreshShowIndex(ctx context.Context, userID string, showIDs []string) error {
	for _, showID := range showIDs {
		err := ms.Store.UpdateItem(ctx, models.ShowFollowersTable,
			Key{"showId": showID},
			[]Mutation{AddToSet("userIds", userID)},
		)
		if err != nil {
			return fmt.Errorf("failed to refresh index for show %s: %w", showID, err)
		}
	}
	return nil
}

// FilterCandidates walks the reverse index of each favorite show and
// counts shared shows per encountered user, dropping excluded users as
// they appear. Only counts at or above the match threshold survive.
func (ms *MatchmakingService) FilterCandidates(ctx context.Context, showIDs []string, excluded map[string]struct{}) (map[string]int, error) {
	keys := make([]Key, 0, len(showIDs))
	for _, showID := range showIDs {
		keys = append(keys, Key{"showId": showID})
	}

	var entries []models.ShowFollowers
	if err := ms.Store.BatchGetItems(ctx, models.ShowFollowersTable, keys, &entries); err != nil {
		return nil, fmt.Errorf("failed to read show follower index: %w", err)
	}

	counts := map[string]int{}
	for _, entry := range entries {
		for _, followerID := range entry.UserIDs {
			if _, skip := excluded[followerID]; skip {
				continue
			}
			counts[followerID]++
		}
	}

	for candidateID, shared := range counts {
		if shared < models.MatchThreshold {
			delete(counts, candidateID)
		}
	}
	return counts, nil
}

// MatchPreferences fetches candidate profiles in bounded chunks and
// keeps those passing the mutual gender and location predicates, in
// shared-count order (ties broken by user ID). A candidate whose
// profile is missing or incomplete is skipped, never fatal.
func (ms *MatchmakingService) MatchPreferences(ctx context.Context, requester *models.UserProfile, counts map[string]int) ([]acceptedCandidate, error) {
	candidateIDs := make([]string, 0, len(counts))
	for candidateID := range counts {
		candidateIDs = append(candidateIDs, candidateID)
	}
	sort.Strings(candidateIDs)

	var accepted []acceptedCandidate
	for start := 0; start < len(candidateIDs); start += models.ProfileFetchChunkSize {
		end := start + models.ProfileFetchChunkSize
		if end > len(candidateIDs) {
			end = len(candidateIDs)
		}
		chunk := make([]Key, 0, end-start)
		for _, candidateID := range candidateIDs[start:end] {
			chunk = append(chunk, Key{"userId": candidateID})
		}

		var profiles []models.UserProfile
		if err := ms.Store.BatchGetItems(ctx, models.UserProfilesTable, chunk, &profiles); err != nil {
			log.Printf("❌ Failed to fetch candidate chunk: %v", err)
			continue
		}

		for i := range profiles {
			candidate := profiles[i]
			if !ms.preferencesCompatible(requester, &candidate) {
				continue
			}
			shared := counts[candidate.UserID]
			level := models.MatchLevelOrdinary
			if shared >= models.SuperMatchThreshold {
				level = models.MatchLevelSuper
			}
			accepted = append(accepted, acceptedCandidate{Profile: candidate, Shared: shared, Level: level})
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].Shared != accepted[j].Shared {
			return accepted[i].Shared > accepted[j].Shared
		}
		return accepted[i].Profile.UserID < accepted[j].Profile.UserID
	})
	return accepted, nil
}

// preferencesCompatible evaluates the symmetric preference predicate.
// Gender must be acceptable in both directions; location requires both
// parties within range when coordinates exist on both sides, falling
// back to an equal non-empty region.
func (ms *MatchmakingService) preferencesCompatible(requester, candidate *models.UserProfile) bool {
	// A candidate who blocked or already matched the requester is out,
	// whatever the requester's own sets say.
	if _, excluded := candidate.ExcludedUserIDs()[requester.UserID]; excluded {
		return false
	}

	if requester.Gender == "" || candidate.Gender == "" {
		return false
	}
	if !requester.AcceptsGender(candidate.Gender) || !candidate.AcceptsGender(requester.Gender) {
		return false
	}

	if requester.HasCoordinates() && candidate.HasCoordinates() {
		distance := utils.CalculateDistance(requester.Latitude, requester.Longitude, candidate.Latitude, candidate.Longitude)
		return distance <= models.MaxMatchDistanceKm
	}
	return requester.Region != "" && requester.Region == candidate.Region
}

// commitMatches writes all match records, both sides' matched sets and
// the requester's advanced cooldown in one atomic commit. The cooldown
// update is conditioned on the prior stored state, so of two racing
// searches by the same user exactly one commit lands.
func (ms *MatchmakingService) commitMatches(ctx context.Context, requester *models.UserProfile, accepted []acceptedCandidate, decision CooldownDecision) ([]models.Match, error) {
	matches := make([]models.Match, 0, len(accepted))
	ops := make([]WriteOp, 0, 1+2*len(accepted))

	candidateIDs := make([]string, 0, len(accepted))
	for _, candidate := range accepted {
		match := models.Match{
			MatchID:     models.PairMatchID(requester.UserID, candidate.Profile.UserID),
			Users:       models.SortedPair(requester.UserID, candidate.Profile.UserID),
			Level:       candidate.Level,
			SharedShows: candidate.Shared,
			InitiatedBy: requester.UserID,
			CreatedAt:   decision.Next.LastSearchAt,
		}
		matches = append(matches, match)
		candidateIDs = append(candidateIDs, candidate.Profile.UserID)

		ops = append(ops, PutOp(models.MatchesTable, match, IfAttrNotExists("matchId")))
		ops = append(ops, UpdateOp(models.UserProfilesTable,
			Key{"userId": candidate.Profile.UserID},
			[]Mutation{AddToSet("matchedWith", requester.UserID)},
		))
	}

	// One op for the requester: a transaction may touch each document
	// only once, so the cooldown advance and the matched-set additions
	// share it.
	requesterMuts := []Mutation{
		Set("lastSearchAt", decision.Next.LastSearchAt),
		Set("searchCount", decision.Next.SearchCount),
	}
	if len(candidateIDs) > 0 {
		requesterMuts = append(requesterMuts, AddToSet("matchedWith", candidateIDs...))
	}
	ops = append(ops, UpdateOp(models.UserProfilesTable,
		Key{"userId": requester.UserID},
		requesterMuts,
		IfEquals("lastSearchAt", requester.LastSearchAt),
		IfEquals("searchCount", requester.SearchCount),
	))

	if err := ms.Store.Commit(ctx, ops); err != nil {
		if errors.Is(err, ErrConditionFailed) {
			return nil, fmt.Errorf("another search for user %s landed first: %w", requester.UserID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to commit search results: %w", err)
	}
	return matches, nil
}

// notifyMatches pushes a notification to each new counterpart.
// Best-effort: delivery failures are logged and never fail the search.
func (ms *MatchmakingService) notifyMatches(ctx context.Context, requester *models.UserProfile, accepted []acceptedCandidate, matches []models.Match) {
	if ms.Push == nil {
		return
	}
	for i := range accepted {
		counterpart := accepted[i].Profile
		if err := ms.Push.SendMatchNotification(ctx, &counterpart, requester, &matches[i]); err != nil {
			log.Printf("❌ Failed to notify user %s about match %s: %v", counterpart.UserID, matches[i].MatchID, err)
		}
	}
}

// ListMatches returns the caller's matches enriched with counterpart
// display fields, newest first.
func (ms *MatchmakingService) ListMatches(ctx context.Context, userID string) ([]MatchSummary, error) {
	var profile models.UserProfile
	if err := ms.Store.GetItem(ctx, models.UserProfilesTable, Key{"userId": userID}, &profile); err != nil {
		return nil, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
	}

	if len(profile.MatchedWith) == 0 {
		return []MatchSummary{}, nil
	}

	counterpartIDs := append([]string(nil), profile.MatchedWith...)
	sort.Strings(counterpartIDs)

	matchKeys := make([]Key, 0, len(counterpartIDs))
	for _, counterpartID := range counterpartIDs {
		matchKeys = append(matchKeys, Key{"matchId": models.PairMatchID(userID, counterpartID)})
	}
	var matches []models.Match
	if err := ms.Store.BatchGetItems(ctx, models.MatchesTable, matchKeys, &matches); err != nil {
		return nil, fmt.Errorf("failed to load matches for user %s: %w", userID, err)
	}
	matchByCounterpart := make(map[string]models.Match, len(matches))
	for _, match := range matches {
		matchByCounterpart[match.OtherUser(userID)] = match
	}

	profilesByID, err := ms.fetchProfiles(ctx, counterpartIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]MatchSummary, 0, len(counterpartIDs))
	for _, counterpartID := range counterpartIDs {
		match, ok := matchByCounterpart[counterpartID]
		if !ok {
			continue
		}
		summary := MatchSummary{
			MatchID:     match.MatchID,
			UserID:      counterpartID,
			Level:       match.Level,
			SharedShows: match.SharedShows,
			MatchedAt:   match.CreatedAt,
		}
		if counterpart, ok := profilesByID[counterpartID]; ok {
			summary.Name = counterpart.Name
			summary.Photo = firstPhoto(counterpart.Photos)
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].MatchedAt.Equal(summaries[j].MatchedAt) {
			return summaries[i].MatchedAt.After(summaries[j].MatchedAt)
		}
		return summaries[i].UserID < summaries[j].UserID
	})
	return summaries, nil
}

// fetchProfiles loads profiles in chunks, skipping missing users.
func (ms *MatchmakingService) fetchProfiles(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	out := make(map[string]models.UserProfile, len(userIDs))
	for start := 0; start < len(userIDs); start += models.ProfileFetchChunkSize {
		end := start + models.ProfileFetchChunkSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		chunk := make([]Key, 0, end-start)
		for _, id := range userIDs[start:end] {
			chunk = append(chunk, Key{"userId": id})
		}
		var profiles []models.UserProfile
		if err := ms.Store.BatchGetItems(ctx, models.UserProfilesTable, chunk, &profiles); err != nil {
			return nil, fmt.Errorf("failed to fetch profiles: %w", err)
		}
		for _, p := range profiles {
			out[p.UserID] = p
		}
	}
	return out, nil
}

func normalizeShowIDs(showIDs []string) []string {
	seen := map[string]struct{}{}
	for _, showID := range showIDs {
		if showID == "" {
			continue
		}
		seen[showID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for showID := range seen {
		out = append(out, showID)
	}
	sort.Strings(out)
	return out
}

func firstPhoto(photos []string) string {
	if len(photos) == 0 {
		return ""
	}
	return photos[0]
}
