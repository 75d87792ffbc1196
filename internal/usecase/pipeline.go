package usecase

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

const stageConcurrency = 32

// stage is one enrichment step applied to every item of a result set. Stages
// of one call write disjoint fields and may run in any order.
type stage[T any] struct {
	name string
	run  func(ctx context.Context, item T) error
}

// runStages fans every stage out over items and waits for all of them. The
// first failure cancels the rest and is returned.
func runStages[T any](ctx context.Context, collection string, items []T, stages []stage[T]) error {
	if len(items) == 0 || len(stages) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stageConcurrency)
	for _, s := range stages {
		pipelineStageTotal.WithLabelValues(collection, s.name).Inc()
		for _, item := range items {
			g.Go(func() error {
				if err := s.run(gctx, item); err != nil {
					return fmt.Errorf("%s failed: %w", s.name, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// authorMemo resolves each origin's profile once per pipeline call.
type authorMemo struct {
	base    *base
	mu      sync.Mutex
	entries map[string]*authorEntry
}

type authorEntry struct {
	once    sync.Once
	profile *domain.Profile
	err     error
}

func newAuthorMemo(b *base) *authorMemo {
	return &authorMemo{base: b, entries: map[string]*authorEntry{}}
}

func (m *authorMemo) get(ctx context.Context, origin string) (*domain.Profile, error) {
	m.mu.Lock()
	entry, ok := m.entries[origin]
	if !ok {
		entry = &authorEntry{}
		m.entries[origin] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.profile, entry.err = m.base.lookupAuthor(ctx, origin)
	})
	return entry.profile, entry.err
}

// enrichers are the lookups stages share across collections.
type enrichers struct {
	base          *base
	votes         *VoteUsecase
	subscriptions *SubscriptionUsecase
	replies       func(ctx context.Context, url string) ([]*domain.BroadcastView, error)
}

func (e *enrichers) subscribed(ctx context.Context, requester, url string) (*bool, error) {
	ok, err := e.subscriptions.IsSubscribed(ctx, requester, url)
	if err != nil {
		return nil, err
	}
	return &ok, nil
}

// commonStages builds the stages every content collection supports. The
// accessors return pointers to the fields of one item the stages fill.
func commonStages[T any](
	e *enrichers,
	req domain.Enrichment,
	meta func(T) domain.RecordMeta,
	fields func(T) (author **domain.Profile, votes **domain.VoteTally, replies *[]*domain.BroadcastView),
) []stage[T] {
	var stages []stage[T]

	if req.FetchAuthor {
		memo := newAuthorMemo(e.base)
		stages = append(stages, stage[T]{"fetchAuthor", func(ctx context.Context, item T) error {
			author, _, _ := fields(item)
			profile, err := memo.get(ctx, meta(item).Origin)
			*author = profile
			return err
		}})
	}

	if req.CountVotes {
		stages = append(stages, stage[T]{"countVotes", func(ctx context.Context, item T) error {
			_, votes, _ := fields(item)
			tally, err := e.votes.CountVotes(ctx, meta(item).URL)
			*votes = tally
			return err
		}})
	}

	if req.FetchReplies {
		stages = append(stages, stage[T]{"fetchReplies", func(ctx context.Context, item T) error {
			_, _, replies := fields(item)
			list, err := e.replies(ctx, meta(item).URL)
			*replies = list
			return err
		}})
	}

	return stages
}
