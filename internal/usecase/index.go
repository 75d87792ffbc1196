package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// Deps are the ports an index is built on. Files and Publisher are optional.
type Deps struct {
	Store     Store
	Files     ArchiveFiles
	Publisher EventPublisher
	Logger    *slog.Logger
}

type Options struct {
	// Owner is the archive the index is bound to, or empty.
	Owner   string
	Variant domain.Variant
	Clock   func() time.Time
}

// Index is the query and aggregation layer over the archives in scope.
type Index struct {
	Scope         *ScopeUsecase
	Profiles      *ProfileUsecase
	Social        *SocialUsecase
	Votes         *VoteUsecase
	Subscriptions *SubscriptionUsecase
	Broadcasts    *BroadcastUsecase
	Gizmos        *GizmoUsecase
	Posts         *PostUsecase
	Dependencies  *DependencyResolver
	Records       *RecordUsecase

	base *base
	wg   sync.WaitGroup
}

// Open wires an index over deps. With an owner, the owner archive is added
// before Open returns and the archives it follows are added in the
// background.
func Open(ctx context.Context, deps Deps, opts Options) (*Index, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("a store is required")
	}
	if opts.Variant == "" {
		opts.Variant = domain.VariantSocial
	}
	if !opts.Variant.Valid() {
		return nil, fmt.Errorf("unknown index variant %q", opts.Variant)
	}

	b := &base{
		store:     deps.Store,
		files:     deps.Files,
		publisher: deps.Publisher,
		variant:   opts.Variant,
		now:       opts.Clock,
		logger:    deps.Logger,
	}
	if b.publisher == nil {
		b.publisher = nopPublisher{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if opts.Owner != "" {
		owner, err := b.archiveURL("open index", opts.Owner)
		if err != nil {
			return nil, err
		}
		b.owner = owner
	}

	idx := &Index{base: b}
	idx.Scope = NewScopeUsecase(b)
	idx.Profiles = NewProfileUsecase(b)
	idx.Social = NewSocialUsecase(b, idx.Scope)
	idx.Votes = NewVoteUsecase(b)
	idx.Subscriptions = NewSubscriptionUsecase(b)
	idx.Dependencies = NewDependencyResolver(b)
	idx.Broadcasts = NewBroadcastUsecase(b, idx.Votes, idx.Subscriptions)
	idx.Gizmos = NewGizmoUsecase(b, idx.Broadcasts.enrichers, idx.Dependencies)
	idx.Posts = NewPostUsecase(b, idx.Broadcasts.enrichers, idx.Gizmos, idx.Dependencies)
	idx.Records = NewRecordUsecase(b)

	if b.owner == "" {
		return idx, nil
	}

	if err := idx.Scope.AddArchive(ctx, b.owner); err != nil {
		return nil, err
	}

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		ctx := context.WithoutCancel(ctx)
		followed, err := idx.Social.followedArchives(ctx, b.owner)
		if err == nil {
			err = idx.Scope.AddArchives(ctx, followed)
		}
		if err != nil {
			b.logger.ErrorContext(ctx, "failed to index followed archives",
				slog.String("module", "index"),
				slog.String("owner", b.owner),
				slog.String("error", err.Error()),
			)
			return
		}
		b.logger.InfoContext(ctx, "indexed followed archives",
			slog.String("module", "index"),
			slog.String("owner", b.owner),
			slog.Int("count", len(followed)),
		)
	}()

	return idx, nil
}

func (idx *Index) Owner() string { return idx.base.owner }

func (idx *Index) Variant() domain.Variant { return idx.base.variant }

// Wait blocks until background indexing started by Open has finished.
func (idx *Index) Wait() {
	idx.wg.Wait()
}

// Close waits for background indexing and closes the store. With destroy set
// every archive and record is deleted first.
func (idx *Index) Close(ctx context.Context, destroy bool) error {
	idx.wg.Wait()
	if destroy {
		if err := idx.base.store.Destroy(ctx); err != nil {
			return fmt.Errorf("failed to destroy index: %w", err)
		}
	}
	return idx.base.store.Close()
}
