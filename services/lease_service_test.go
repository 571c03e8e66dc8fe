package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaseFixture(t *testing.T) (*LeaseService, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &LeaseService{Client: client}, mr
}

func TestLeaseAcquireIsExclusivePerConversation(t *testing.T) {
	ctx := context.Background()
	service, _ := newLeaseFixture(t)

	held, release, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, held)
	defer release()

	// The same conversation is taken, a different one is not.
	heldAgain, _, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, heldAgain)

	heldOther, releaseOther, err := service.Acquire(ctx, "conv-2")
	require.NoError(t, err)
	assert.True(t, heldOther)
	releaseOther()
}

func TestLeaseReleaseAllowsReacquire(t *testing.T) {
	ctx := context.Background()
	service, _ := newLeaseFixture(t)

	held, release, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, held)
	release()

	held, release, err = service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, held)
	release()
}

func TestLeaseExpiresWhenHolderCrashes(t *testing.T) {
	ctx := context.Background()
	service, mr := newLeaseFixture(t)

	held, _, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, held)

	// The holder never releases; the TTL reclaims the lease.
	mr.FastForward(leaseTTL + time.Second)

	held, release, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, held)
	release()
}

func TestLeaseReleaseLeavesSuccessorAlone(t *testing.T) {
	ctx := context.Background()
	service, mr := newLeaseFixture(t)

	held, staleRelease, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, held)

	mr.FastForward(leaseTTL + time.Second)

	held, release, err := service.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, held)

	// The stale holder's release must not free the successor's lease.
	staleRelease()
	assert.True(t, mr.Exists("archive-lease:conv-1"))

	release()
	assert.False(t, mr.Exists("archive-lease:conv-1"))
}

func TestLeaseWithoutRedisGrantsEverything(t *testing.T) {
	ctx := context.Background()
	service := &LeaseService{}

	for i := 0; i < 2; i++ {
		held, release, err := service.Acquire(ctx, "conv-1")
		require.NoError(t, err)
		assert.True(t, held)
		release()
	}
}

func TestSweepSkipsLeasedConversations(t *testing.T) {
	ctx := context.Background()
	lease, mr := newLeaseFixture(t)
	store := NewMemoryStore()
	service := &ArchiveService{Store: store, Blobs: NewMemoryBlobStore(), Lease: lease}
	seedConversation(t, store, "conv-1", []string{"alice", "bob"}, 25)

	// Another runner holds the conversation's lease.
	require.NoError(t, mr.Set("archive-lease:conv-1", "someone-else"))

	result := service.SweepArchives(ctx)
	assert.Equal(t, 1, result.Eligible)
	assert.Equal(t, 0, result.Archived)
	assert.Equal(t, 1, result.Skipped)

	// Once the lease clears, the next sweep picks the conversation up.
	mr.Del("archive-lease:conv-1")
	result = service.SweepArchives(ctx)
	assert.Equal(t, 1, result.Archived)
}
