package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

func TestFollowRequiresProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)

	err := env.idx.Social.Follow(ctx, alice, bob, "bob")
	assert.ErrorIs(t, err, domain.ErrNoProfile)

	env.profile(t, alice, "alice")
	require.NoError(t, env.idx.Social.Follow(ctx, alice, bob, "bob"))

	following, err := env.idx.Social.IsFollowing(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, following)

	archives, err := env.idx.Scope.ListArchives(ctx)
	require.NoError(t, err)
	assert.Contains(t, archives, bob)
}

func TestFollowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")

	require.NoError(t, env.idx.Social.Follow(ctx, alice, bob, "bob"))
	require.NoError(t, env.idx.Social.Follow(ctx, "alice", "cc://bob/profile", "bob again"))

	profile, err := env.idx.Profiles.GetProfile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, profile.FollowURLs)
	assert.Equal(t, "bob", profile.Follows.Items()[0].Name)

	count, err := env.idx.Social.CountFollowers(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFriendsAreReciprocal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")
	env.profile(t, bob, "bob")
	env.profile(t, carol, "carol")

	require.NoError(t, env.idx.Social.Follow(ctx, alice, bob, ""))
	require.NoError(t, env.idx.Social.Follow(ctx, carol, bob, ""))

	friends, err := env.idx.Social.IsFriendsWith(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, friends)

	require.NoError(t, env.idx.Social.Follow(ctx, bob, alice, ""))

	friends, err = env.idx.Social.IsFriendsWith(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, friends)
	friends, err = env.idx.Social.IsFriendsWith(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, friends)

	followers, err := env.idx.Social.ListFollowers(ctx, bob)
	require.NoError(t, err)
	var origins []string
	for _, p := range followers {
		origins = append(origins, p.Origin)
	}
	assert.Equal(t, []string{alice, carol}, origins)

	list, err := env.idx.Social.ListFriends(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alice, list[0].Origin)
	assert.Equal(t, "alice", list[0].Name)

	count, err := env.idx.Social.CountFriends(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIsFollowingWithoutProfile(t *testing.T) {
	env := newTestEnv(t, domain.VariantSocial)

	following, err := env.idx.Social.IsFollowing(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestUnfollowRemovesArchive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")
	env.profile(t, bob, "bob")

	require.NoError(t, env.idx.Social.Follow(ctx, alice, bob, ""))
	_, err := env.idx.Broadcasts.Broadcast(ctx, bob, domain.BroadcastInput{Text: "hello"})
	require.NoError(t, err)

	require.NoError(t, env.idx.Social.Unfollow(ctx, alice, bob))

	following, err := env.idx.Social.IsFollowing(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, following)

	archives, err := env.idx.Scope.ListArchives(ctx)
	require.NoError(t, err)
	assert.NotContains(t, archives, bob)

	count, err := env.idx.Broadcasts.CountBroadcasts(ctx, domain.ListOptions{Author: bob})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPruneUnfollowedArchives(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")

	require.NoError(t, env.idx.Scope.AddArchives(ctx, []string{alice, bob, carol, "cc://dave"}))
	require.NoError(t, env.idx.Social.Follow(ctx, alice, bob, ""))
	_, err := env.idx.Broadcasts.Broadcast(ctx, carol, domain.BroadcastInput{Text: "bye"})
	require.NoError(t, err)

	require.NoError(t, env.idx.Scope.PruneUnfollowedArchives(ctx, alice))

	archives, err := env.idx.Scope.ListArchives(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{alice, bob}, archives)

	count, err := env.idx.Broadcasts.CountBroadcasts(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSetProfileIsPartial(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)

	require.NoError(t, env.idx.Profiles.SetProfile(ctx, alice, domain.ProfileInput{
		Name: ptr("alice"),
		Bio:  ptr("hi"),
	}))
	require.NoError(t, env.idx.Profiles.SetProfile(ctx, alice, domain.ProfileInput{
		Bio: ptr("updated"),
	}))

	profile, err := env.idx.Profiles.GetProfile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Name)
	assert.Equal(t, "updated", profile.Bio)
	assert.Equal(t, "cc://alice/profile", profile.URL)
}

func TestSetAvatar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)

	err := env.idx.Profiles.SetAvatar(ctx, alice, []byte("x"), "p/ng")
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	require.NoError(t, env.idx.Profiles.SetAvatar(ctx, alice, []byte("png"), ".PNG"))
	assert.Equal(t, []byte("png"), env.files.written["cc://alice/avatar.png"])
	assert.Equal(t, []string{alice}, env.files.committed)

	profile, err := env.idx.Profiles.GetProfile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "avatar.png", profile.Avatar)
}

func TestConcurrentFollowsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")

	const n = 20
	targets := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		targets[i] = fmt.Sprintf("cc://t%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = env.idx.Social.Follow(ctx, alice, targets[i], "")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "follow %s", targets[i])
	}

	profile, err := env.idx.Profiles.GetProfile(ctx, alice)
	require.NoError(t, err)
	require.NotEmpty(t, profile.FollowURLs)

	// the follower index agrees with whichever write won
	kept := map[string]bool{}
	for _, u := range profile.FollowURLs {
		kept[u] = true
	}
	for _, target := range targets {
		count, err := env.idx.Social.CountFollowers(ctx, target)
		require.NoError(t, err)
		if kept[target] {
			assert.Equal(t, 1, count, target)
		} else {
			assert.Equal(t, 0, count, target)
		}
	}
}
