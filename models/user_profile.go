package models

// UserProfile defines the structure for user profiles
type UserProfile struct {
	UserID           string    `dynamodbav:"userId" json:"userId"`
	Name             string    `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Gender           string    `dynamodbav:"gender,omitempty" json:"gender,omitempty"`
	GenderPreference string    `dynamodbav:"genderPreference,omitempty" json:"genderPreference,omitempty"`
	Region           string    `dynamodbav:"region,omitempty" json:"region,omitempty"`
	Latitude         float64   `dynamodbav:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude        float64   `dynamodbav:"longitude,omitempty" json:"longitude,omitempty"`
	Photos           []string  `dynamodbav:"photos,omitempty" json:"photos,omitempty"`
	FavoriteShows    []string  `dynamodbav:"favoriteShows,stringset,omitempty" json:"favoriteShows,omitempty"`
	Blocked          []string  `dynamodbav:"blocked,stringset,omitempty" json:"blocked,omitempty"`
	MatchedWith      []string  `dynamodbav:"matchedWith,stringset,omitempty" json:"matchedWith,omitempty"`
	LastSearchAt     Timestamp `dynamodbav:"lastSearchAt" json:"lastSearchAt"`
	SearchCount      int       `dynamodbav:"searchCount" json:"searchCount"`
	PushToken        string    `dynamodbav:"pushToken,omitempty" json:"-"`
}

// UserProfilesTable is the DynamoDB table name for user profiles
const UserProfilesTable = "UserProfiles"

// GenderPreferenceEveryone disables gender filtering for a profile.
const GenderPreferenceEveryone = "everyone"

// ExcludedUserIDs returns the set of users a search on behalf of this
// profile must never surface: the user themselves, everyone they
// blocked, and everyone they already matched with.
func (u *UserProfile) ExcludedUserIDs() map[string]struct{} {
	excluded := make(map[string]struct{}, len(u.Blocked)+len(u.MatchedWith)+1)
	excluded[u.UserID] = struct{}{}
	for _, id := range u.Blocked {
		excluded[id] = struct{}{}
	}
	for _, id := range u.MatchedWith {
		excluded[id] = struct{}{}
	}
	return excluded
}

// AcceptsGender reports whether this profile's preference admits the
// given gender. An empty or "everyone" preference admits anyone.
func (u *UserProfile) AcceptsGender(gender string) bool {
	if u.GenderPreference == "" || u.GenderPreference == GenderPreferenceEveryone {
		return true
	}
	return u.GenderPreference == gender
}

// HasCoordinates reports whether the profile carries a usable
// latitude/longitude pair.
func (u *UserProfile) HasCoordinates() bool {
	return u.Latitude != 0 && u.Longitude != 0
}
