package models

// ShowFollowers is the reverse index from a show to the users who
// favorite it. An entry exists only while at least one user follows
// the show; membership updates are idempotent set unions/removals so
// concurrent writers can never corrupt it.
type ShowFollowers struct {
	ShowID  string   `dynamodbav:"showId" json:"showId"`
	UserIDs []string `dynamodbav:"userIds,stringset,omitempty" json:"userIds,omitempty"`
}

// ShowFollowersTable is the DynamoDB table name for the reverse index
const ShowFollowersTable = "ShowFollowers"
