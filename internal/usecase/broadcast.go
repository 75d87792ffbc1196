package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

type BroadcastUsecase struct {
	*base
	enrichers *enrichers
}

func NewBroadcastUsecase(b *base, votes *VoteUsecase, subscriptions *SubscriptionUsecase) *BroadcastUsecase {
	uc := &BroadcastUsecase{base: b}
	uc.enrichers = &enrichers{
		base:          b,
		votes:         votes,
		subscriptions: subscriptions,
		replies:       uc.listReplies,
	}
	return uc
}

// Broadcast writes a new broadcast into archive and returns its url. A reply
// without an explicit thread root starts its thread at the parent.
func (uc *BroadcastUsecase) Broadcast(ctx context.Context, archive string, input domain.BroadcastInput) (string, error) {
	archiveURL, err := uc.archiveURL("broadcast", archive)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input.Text) == "" {
		return "", domain.ErrTextRequired.With("broadcast")
	}

	threadParent := strings.TrimSpace(input.ThreadParent)
	threadRoot := strings.TrimSpace(input.ThreadRoot)
	if threadRoot == "" {
		threadRoot = threadParent
	}
	for _, ref := range []string{threadParent, threadRoot} {
		if ref == "" {
			continue
		}
		if _, _, _, err := parallel.ParseRecordURL(ref); err != nil {
			return "", fmt.Errorf("%w: %s", domain.ErrInvalidReference.With("broadcast"), err)
		}
	}

	createdAt := uc.now().UnixMilli()
	url := parallel.RecordURL(archiveURL, domain.CollectionBroadcasts, strconv.FormatInt(createdAt, 10))
	broadcast := &domain.Broadcast{
		RecordMeta:   domain.RecordMeta{URL: url, Origin: archiveURL},
		Text:         input.Text,
		ThreadRoot:   threadRoot,
		ThreadParent: threadParent,
		CreatedAt:    createdAt,
		ReceivedAt:   createdAt,
	}

	if err := uc.put(ctx, domain.CollectionBroadcasts, broadcast); err != nil {
		return "", err
	}
	return url, nil
}

func (uc *BroadcastUsecase) ListBroadcasts(ctx context.Context, req domain.ListBroadcastsRequest) ([]*domain.BroadcastView, error) {
	ctx, span := tracer.Start(ctx, "Broadcast.Usecase.ListBroadcasts")
	defer span.End()

	if err := req.Enrichment.Validate(domain.CollectionBroadcasts); err != nil {
		return nil, err
	}
	opts, err := normalizeListOptions(uc.base, "list broadcasts", req.ListOptions)
	if err != nil {
		return nil, err
	}

	views, err := uc.list(ctx, ContentQuery(domain.CollectionBroadcasts, opts), req.Enrichment)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return views, nil
}

func (uc *BroadcastUsecase) CountBroadcasts(ctx context.Context, opts domain.ListOptions) (int, error) {
	opts, err := normalizeListOptions(uc.base, "count broadcasts", opts)
	if err != nil {
		return 0, err
	}
	return uc.store.Count(ctx, ContentQuery(domain.CollectionBroadcasts, opts))
}

// ListReplies lists the broadcasts of the thread rooted at threadRoot.
func (uc *BroadcastUsecase) ListReplies(ctx context.Context, threadRoot string, page domain.PageOptions, req domain.Enrichment) ([]*domain.BroadcastView, error) {
	if err := req.Validate(domain.CollectionBroadcasts); err != nil {
		return nil, err
	}
	return uc.list(ctx, RepliesQuery(strings.TrimSpace(threadRoot), page), req)
}

// listReplies is the reply stage of every collection.
func (uc *BroadcastUsecase) listReplies(ctx context.Context, url string) ([]*domain.BroadcastView, error) {
	return uc.list(ctx, RepliesQuery(url, domain.PageOptions{}), domain.Enrichment{FetchAuthor: true})
}

// GetBroadcast loads a broadcast with its author, votes and replies.
func (uc *BroadcastUsecase) GetBroadcast(ctx context.Context, url string) (*domain.BroadcastView, error) {
	ctx, span := tracer.Start(ctx, "Broadcast.Usecase.GetBroadcast")
	defer span.End()

	broadcast, err := load[domain.Broadcast](ctx, uc.store, domain.CollectionBroadcasts, strings.TrimSpace(url))
	if err != nil {
		return nil, err
	}

	view := &domain.BroadcastView{Broadcast: *broadcast}
	err = uc.enrich(ctx, []*domain.BroadcastView{view}, domain.Enrichment{
		FetchAuthor:  true,
		CountVotes:   true,
		FetchReplies: true,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}

func (uc *BroadcastUsecase) list(ctx context.Context, q domain.Query, req domain.Enrichment) ([]*domain.BroadcastView, error) {
	records, err := uc.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.BroadcastView, 0, len(records))
	for _, record := range records {
		broadcast, err := decode[domain.Broadcast](record)
		if err != nil {
			return nil, err
		}
		views = append(views, &domain.BroadcastView{Broadcast: *broadcast})
	}

	if err := uc.enrich(ctx, views, req); err != nil {
		return nil, err
	}
	return views, nil
}

func (uc *BroadcastUsecase) enrich(ctx context.Context, views []*domain.BroadcastView, req domain.Enrichment) error {
	stages := commonStages(uc.enrichers, req,
		func(v *domain.BroadcastView) domain.RecordMeta { return v.RecordMeta },
		func(v *domain.BroadcastView) (**domain.Profile, **domain.VoteTally, *[]*domain.BroadcastView) {
			return &v.Author, &v.Votes, &v.Replies
		},
	)

	if req.CheckIfSubscribed {
		stages = append(stages, stage[*domain.BroadcastView]{"checkIfSubscribed", func(ctx context.Context, v *domain.BroadcastView) (err error) {
			v.IsSubscribed, err = uc.enrichers.subscribed(ctx, req.Requester, v.URL)
			return err
		}})
	}

	return runStages(ctx, domain.CollectionBroadcasts, views, stages)
}

// normalizeListOptions turns the author filter into an archive url.
func normalizeListOptions(b *base, op string, opts domain.ListOptions) (domain.ListOptions, error) {
	if opts.Author == "" {
		return opts, nil
	}
	author, err := b.archiveURL(op, opts.Author)
	if err != nil {
		return opts, err
	}
	opts.Author = author
	return opts, nil
}
