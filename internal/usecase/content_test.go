package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

func TestVoteTally(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	idx, _, _ := openTestIndex(t, store, domain.VariantSocial, alice)
	subject := "cc://carol/broadcasts/1"

	_, err := idx.Votes.Vote(ctx, alice, domain.VoteInput{Subject: subject, Vote: 1})
	require.NoError(t, err)
	_, err = idx.Votes.Vote(ctx, bob, domain.VoteInput{Subject: subject, Vote: 5})
	require.NoError(t, err)
	_, err = idx.Votes.Vote(ctx, carol, domain.VoteInput{Subject: subject, Vote: -1})
	require.NoError(t, err)

	tally, err := idx.Votes.CountVotes(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Up)
	assert.Equal(t, -1, tally.Down)
	assert.Equal(t, 1, tally.Value)
	assert.ElementsMatch(t, []string{alice, bob}, tally.UpVoters)
	assert.Equal(t, 1, tally.CurrentUsersVote)

	// a second vote replaces the first
	_, err = idx.Votes.Vote(ctx, alice, domain.VoteInput{Subject: subject, Vote: -1})
	require.NoError(t, err)

	tally, err = idx.Votes.CountVotes(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Up)
	assert.Equal(t, -2, tally.Down)
	assert.Equal(t, -1, tally.Value)
	assert.Equal(t, []string{bob}, tally.UpVoters)
	assert.Equal(t, -1, tally.CurrentUsersVote)

	votes, err := idx.Votes.ListVotes(ctx, subject)
	require.NoError(t, err)
	assert.Len(t, votes, 3)
}

func TestVoteWithoutSubject(t *testing.T) {
	env := newTestEnv(t, domain.VariantSocial)

	_, err := env.idx.Votes.Vote(context.Background(), alice, domain.VoteInput{Subject: " ", Vote: 1})
	assert.ErrorIs(t, err, domain.ErrSubjectRequired)

	tally, err := env.idx.Votes.CountVotes(context.Background(), "cc://nobody/broadcasts/1")
	require.NoError(t, err)
	assert.Equal(t, &domain.VoteTally{UpVoters: []string{}}, tally)
}

func TestListBroadcasts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")

	var aliceURLs []string
	for _, text := range []string{"one", "two", "three"} {
		url, err := env.idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: text})
		require.NoError(t, err)
		aliceURLs = append(aliceURLs, url)
	}
	_, err := env.idx.Broadcasts.Broadcast(ctx, bob, domain.BroadcastInput{Text: "bob"})
	require.NoError(t, err)

	_, err = env.idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: ""})
	assert.ErrorIs(t, err, domain.ErrTextRequired)

	all, err := env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	views, err := env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		ListOptions: domain.ListOptions{Author: "alice"},
		Enrichment:  domain.Enrichment{FetchAuthor: true},
	})
	require.NoError(t, err)
	require.Len(t, views, 3)
	for i, v := range views {
		assert.Equal(t, aliceURLs[i], v.URL)
		require.NotNil(t, v.Author)
		assert.Equal(t, "alice", v.Author.Name)
	}

	after := views[1].CreatedAt
	ranged, err := env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		ListOptions: domain.ListOptions{Author: alice, After: &after},
	})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, aliceURLs[1], ranged[0].URL)

	latest, err := env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		ListOptions: domain.ListOptions{
			Author:      alice,
			PageOptions: domain.PageOptions{Reverse: ptr(true), Limit: ptr(1)},
		},
	})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, aliceURLs[2], latest[0].URL)

	count, err := env.idx.Broadcasts.CountBroadcasts(ctx, domain.ListOptions{Author: alice})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGetBroadcastWithReplies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, bob, "bob")

	root, err := env.idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: "root"})
	require.NoError(t, err)
	reply, err := env.idx.Broadcasts.Broadcast(ctx, bob, domain.BroadcastInput{Text: "reply", ThreadParent: root})
	require.NoError(t, err)
	_, err = env.idx.Votes.Vote(ctx, bob, domain.VoteInput{Subject: root, Vote: 1})
	require.NoError(t, err)

	_, err = env.idx.Broadcasts.Broadcast(ctx, bob, domain.BroadcastInput{Text: "bad", ThreadParent: "nowhere"})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	view, err := env.idx.Broadcasts.GetBroadcast(ctx, root)
	require.NoError(t, err)
	assert.Nil(t, view.Author)
	require.NotNil(t, view.Votes)
	assert.Equal(t, 1, view.Votes.Value)
	require.Len(t, view.Replies, 1)
	assert.Equal(t, reply, view.Replies[0].URL)
	assert.Equal(t, root, view.Replies[0].ThreadRoot)
	require.NotNil(t, view.Replies[0].Author)
	assert.Equal(t, "bob", view.Replies[0].Author.Name)

	_, err = env.idx.Broadcasts.GetBroadcast(ctx, "cc://alice/broadcasts/404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnrichmentValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)

	_, err := env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		Enrichment: domain.Enrichment{CheckIfSubscribed: true},
	})
	assert.ErrorIs(t, err, domain.ErrRequesterRequired)

	_, err = env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		Enrichment: domain.Enrichment{FetchAllDependencies: true},
	})
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = env.idx.Gizmos.ListGizmos(ctx, domain.ListGizmosRequest{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedVariant)
}

func TestSocialSubscriptions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)

	err := env.idx.Subscriptions.Subscribe(ctx, alice, bob)
	assert.ErrorIs(t, err, domain.ErrNoProfile)

	env.profile(t, alice, "alice")
	require.NoError(t, env.idx.Subscriptions.Subscribe(ctx, alice, bob))

	post, err := env.idx.Broadcasts.Broadcast(ctx, bob, domain.BroadcastInput{Text: "news"})
	require.NoError(t, err)

	views, err := env.idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		Enrichment: domain.Enrichment{CheckIfSubscribed: true, Requester: alice},
	})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, post, views[0].URL)
	require.NotNil(t, views[0].IsSubscribed)
	assert.True(t, *views[0].IsSubscribed)

	err = env.idx.Subscriptions.Unsubscribe(ctx, alice, carol)
	assert.ErrorIs(t, err, domain.ErrNoSubscription)

	require.NoError(t, env.idx.Subscriptions.Unsubscribe(ctx, alice, bob))
	subscribed, err := env.idx.Subscriptions.IsSubscribed(ctx, alice, post)
	require.NoError(t, err)
	assert.False(t, subscribed)

	err = env.idx.Subscriptions.Unsubscribe(ctx, carol, bob)
	assert.ErrorIs(t, err, domain.ErrNoProfile)
}

func TestRetract(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, domain.VariantSocial)
	env.profile(t, alice, "alice")

	url, err := env.idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: "oops"})
	require.NoError(t, err)

	err = env.idx.Records.Retract(ctx, bob, url)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	err = env.idx.Records.Retract(ctx, alice, "cc://alice/profile")
	assert.ErrorIs(t, err, domain.ErrNotRetractable)

	got, err := env.idx.Records.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "oops", got.(*domain.Broadcast).Text)

	require.NoError(t, env.idx.Records.Retract(ctx, alice, url))

	_, err = env.idx.Records.Get(ctx, url)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	types := env.publisher.types()
	assert.Equal(t, domain.EventRecordDelete, types[len(types)-1])
}

func TestFetchAuthorLoadsEachProfileOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newTestStore(t)}
	idx, _, _ := openTestIndex(t, store, domain.VariantSocial, "")

	require.NoError(t, idx.Profiles.SetProfile(ctx, alice, domain.ProfileInput{Name: ptr("alice")}))
	require.NoError(t, idx.Profiles.SetProfile(ctx, bob, domain.ProfileInput{Name: ptr("bob")}))
	for range 10 {
		_, err := idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: "hi"})
		require.NoError(t, err)
	}
	_, err := idx.Broadcasts.Broadcast(ctx, bob, domain.BroadcastInput{Text: "hi"})
	require.NoError(t, err)

	store.reset()
	views, err := idx.Broadcasts.ListBroadcasts(ctx, domain.ListBroadcastsRequest{
		Enrichment: domain.Enrichment{FetchAuthor: true},
	})
	require.NoError(t, err)
	require.Len(t, views, 11)
	for _, v := range views {
		require.NotNil(t, v.Author)
	}
	assert.Equal(t, 2, store.count(domain.CollectionProfile))
}
