package models

// Match records a mutual pairing between two users. Exactly one record
// exists per unordered pair; MatchID is derived from the sorted user IDs
// so concurrent searches from either side resolve to the same item.
type Match struct {
	MatchID     string    `dynamodbav:"matchId" json:"matchId"`
	Users       []string  `dynamodbav:"users" json:"users"`             // sorted pair
	Level       string    `dynamodbav:"level" json:"level"`             // "ordinary" or "super"
	SharedShows int       `dynamodbav:"sharedShows" json:"sharedShows"` // favorite overlap at match time
	InitiatedBy string    `dynamodbav:"initiatedBy" json:"initiatedBy"`
	CreatedAt   Timestamp `dynamodbav:"createdAt" json:"createdAt"`
}

// MatchesTable is the DynamoDB table name for user matches
const MatchesTable = "Matches"

// PairMatchID returns the canonical match ID for an unordered user pair.
func PairMatchID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "#" + userB
}

// SortedPair returns the two user IDs in canonical order.
func SortedPair(userA, userB string) []string {
	if userB < userA {
		return []string{userB, userA}
	}
	return []string{userA, userB}
}

// OtherUser returns the counterpart of userID within the match.
func (m *Match) OtherUser(userID string) string {
	for _, u := range m.Users {
		if u != userID {
			return u
		}
	}
	return ""
}

// HasUser reports whether userID is one of the matched pair.
func (m *Match) HasUser(userID string) bool {
	for _, u := range m.Users {
		if u == userID {
			return true
		}
	}
	return false
}
