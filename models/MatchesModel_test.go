package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairMatchIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "alice#bob", PairMatchID("alice", "bob"))
	assert.Equal(t, "alice#bob", PairMatchID("bob", "alice"))
}

func TestSortedPair(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob"}, SortedPair("bob", "alice"))
	assert.Equal(t, []string{"alice", "bob"}, SortedPair("alice", "bob"))
}

func TestMatchUserHelpers(t *testing.T) {
	match := Match{MatchID: PairMatchID("alice", "bob"), Users: SortedPair("alice", "bob")}

	assert.Equal(t, "bob", match.OtherUser("alice"))
	assert.Equal(t, "alice", match.OtherUser("bob"))
	assert.True(t, match.HasUser("alice"))
	assert.True(t, match.HasUser("bob"))
	assert.False(t, match.HasUser("mallory"))
}
