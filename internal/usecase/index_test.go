package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

func TestOpenIndexesFollowedArchives(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	setup, _, _ := openTestIndex(t, store, domain.VariantSocial, "")
	require.NoError(t, setup.Profiles.SetProfile(ctx, alice, domain.ProfileInput{
		Name:    ptr("alice"),
		Follows: &[]domain.Follow{{URL: "bob", Name: "bob"}, {URL: carol}},
	}))

	idx, publisher, _ := openTestIndex(t, store, domain.VariantSocial, "alice")
	assert.Equal(t, alice, idx.Owner())
	idx.Wait()

	archives, err := idx.Scope.ListArchives(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{alice, bob, carol}, archives)
	assert.Contains(t, publisher.types(), domain.EventArchiveAdd)
}

func TestOpenValidatesOptions(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Deps{}, Options{})
	assert.Error(t, err)

	store := newTestStore(t)
	_, err = Open(ctx, Deps{Store: store}, Options{Variant: "forum"})
	assert.Error(t, err)

	idx, err := Open(ctx, Deps{Store: store}, Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.VariantSocial, idx.Variant())
	assert.Empty(t, idx.Owner())
}

// keepOpen leaves the underlying store open so it can be read after Close.
type keepOpen struct {
	Store
	closed int
}

func (k *keepOpen) Close() error {
	k.closed++
	return nil
}

func TestCloseDestroys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wrapped := &keepOpen{Store: store}
	idx, _, _ := openTestIndex(t, wrapped, domain.VariantSocial, alice)
	idx.Wait()

	_, err := idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: "hello"})
	require.NoError(t, err)

	archives, err := store.ListArchives(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{alice}, archives)
	count, err := idx.Broadcasts.CountBroadcasts(ctx, domain.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, idx.Close(ctx, true))
	assert.Equal(t, 1, wrapped.closed)

	archives, err = store.ListArchives(ctx)
	require.NoError(t, err)
	assert.Empty(t, archives)
	count, err = store.Count(ctx, ContentQuery(domain.CollectionBroadcasts, domain.ListOptions{}))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCloseKeepsData(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wrapped := &keepOpen{Store: store}
	idx, _, _ := openTestIndex(t, wrapped, domain.VariantSocial, alice)
	idx.Wait()

	_, err := idx.Broadcasts.Broadcast(ctx, alice, domain.BroadcastInput{Text: "hello"})
	require.NoError(t, err)
	require.NoError(t, idx.Close(ctx, false))

	count, err := store.Count(ctx, ContentQuery(domain.CollectionBroadcasts, domain.ListOptions{}))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
