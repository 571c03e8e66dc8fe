package models

import "time"

// Match levels
const (
	MatchLevelOrdinary = "ordinary"
	MatchLevelSuper    = "super"
)

// Matching thresholds
const (
	// MatchThreshold is the minimum number of shared shows two users
	// need before they are considered a candidate pair.
	MatchThreshold = 3

	// SuperMatchThreshold upgrades a match to "super".
	SuperMatchThreshold = 7

	// ProfileFetchChunkSize bounds how many candidate profiles are
	// read from the store at a time.
	ProfileFetchChunkSize = 10

	// MaxMatchesPerSearch caps how many matches a single search may
	// create, so the commit (1 + 2 ops per match) always fits inside
	// MaxCommitOps.
	MaxMatchesPerSearch = 25

	// MaxMatchDistanceKm is the distance bound used when both users
	// have coordinates on their profile.
	MaxMatchDistanceKm = 100.0
)

// CooldownSchedule is the cyclic sequence of waits between searches.
// A profile's searchCount indexes into it modulo its length.
var CooldownSchedule = []time.Duration{
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
}

// Message archival
const (
	// ArchiveThreshold is the live message count above which a
	// conversation gets archived down to KeepRecentMessages.
	ArchiveThreshold = 20

	// KeepRecentMessages is how many messages stay live after an
	// archival run.
	KeepRecentMessages = 10

	// BatchMaxMessages caps how many messages one batch document may
	// hold, keeping documents well under the store's size limit.
	BatchMaxMessages = 50

	// MaxCommitOps is the operation budget of one atomic commit,
	// matching the DynamoDB transaction ceiling.
	MaxCommitOps = 100
)
