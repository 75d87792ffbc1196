package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

type GizmoUsecase struct {
	*base
	enrichers    *enrichers
	dependencies *DependencyResolver
}

func NewGizmoUsecase(b *base, e *enrichers, dependencies *DependencyResolver) *GizmoUsecase {
	return &GizmoUsecase{base: b, enrichers: e, dependencies: dependencies}
}

// CreateGizmo writes a new gizmo into archive and returns its url. Every
// dependency must reference an indexed gizmo and is stored with its name.
func (uc *GizmoUsecase) CreateGizmo(ctx context.Context, archive string, input domain.GizmoInput) (string, error) {
	ctx, span := tracer.Start(ctx, "Gizmo.Usecase.CreateGizmo")
	defer span.End()

	const op = "create gizmo"
	if err := uc.requireCollection(op, domain.CollectionGizmos); err != nil {
		return "", err
	}
	archiveURL, err := uc.archiveURL(op, archive)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input.GizmoName) == "" {
		return "", domain.ErrNameRequired.With(op)
	}

	gizmoDeps, err := uc.resolveReferences(ctx, op, input.GizmoDependencies)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	postDeps, err := uc.resolveReferences(ctx, op, input.PostDependencies)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	createdAt := uc.now().UnixMilli()
	url := parallel.RecordURL(archiveURL, domain.CollectionGizmos, strconv.FormatInt(createdAt, 10))
	gizmo := &domain.Gizmo{
		RecordMeta:        domain.RecordMeta{URL: url, Origin: archiveURL},
		GizmoName:         input.GizmoName,
		GizmoDescription:  input.GizmoDescription,
		GizmoDocs:         input.GizmoDocs,
		GizmoDependencies: gizmoDeps,
		PostDependencies:  postDeps,
		GizmoJS:           input.GizmoJS,
		GizmoCSS:          input.GizmoCSS,
		PostJS:            input.PostJS,
		PostCSS:           input.PostCSS,
		CreatedAt:         createdAt,
		ReceivedAt:        createdAt,
	}

	if err := uc.put(ctx, domain.CollectionGizmos, gizmo); err != nil {
		return "", err
	}
	return url, nil
}

func (uc *GizmoUsecase) resolveReferences(ctx context.Context, op string, refs []string) ([]domain.Dependency, error) {
	deps := make([]domain.Dependency, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			ref = strings.TrimSpace(ref)
			if _, _, _, err := parallel.ParseRecordURL(ref); err != nil {
				return fmt.Errorf("%w: %s", domain.ErrInvalidReference.With(op), err)
			}
			gizmo, err := load[domain.Gizmo](gctx, uc.store, domain.CollectionGizmos, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve dependency %s: %w", ref, err)
			}
			deps[i] = domain.Dependency{URL: gizmo.URL, Name: gizmo.GizmoName}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return deps, nil
}

func (uc *GizmoUsecase) ListGizmos(ctx context.Context, req domain.ListGizmosRequest) ([]*domain.GizmoView, error) {
	ctx, span := tracer.Start(ctx, "Gizmo.Usecase.ListGizmos")
	defer span.End()

	const op = "list gizmos"
	if err := uc.requireCollection(op, domain.CollectionGizmos); err != nil {
		return nil, err
	}
	if err := req.Enrichment.Validate(domain.CollectionGizmos); err != nil {
		return nil, err
	}
	if req.LoadShop && req.Author == "" {
		return nil, domain.ErrAuthorRequired.With(op)
	}
	opts, err := normalizeListOptions(uc.base, op, req.ListOptions)
	if err != nil {
		return nil, err
	}

	views, err := uc.find(ctx, ContentQuery(domain.CollectionGizmos, opts))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if req.Subscriber != "" {
		views, err = uc.filterSubscribed(ctx, op, req.Subscriber, views)
		if err != nil {
			return nil, err
		}
	}
	if req.LoadShop {
		views = filter(views, func(v *domain.GizmoView) bool { return v.Origin == opts.Author })
	}

	if err := uc.enrich(ctx, views, req.Enrichment); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return views, nil
}

func (uc *GizmoUsecase) filterSubscribed(ctx context.Context, op, subscriber string, views []*domain.GizmoView) ([]*domain.GizmoView, error) {
	archive, err := uc.archiveURL(op, subscriber)
	if err != nil {
		return nil, err
	}
	profile, err := uc.lookupAuthor(ctx, archive)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrNoProfile.With(op)
	}
	return filter(views, func(v *domain.GizmoView) bool { return profile.Subgizmos.Contains(v.URL) }), nil
}

func (uc *GizmoUsecase) CountGizmos(ctx context.Context, opts domain.ListOptions) (int, error) {
	const op = "count gizmos"
	if err := uc.requireCollection(op, domain.CollectionGizmos); err != nil {
		return 0, err
	}
	opts, err := normalizeListOptions(uc.base, op, opts)
	if err != nil {
		return 0, err
	}
	return uc.store.Count(ctx, ContentQuery(domain.CollectionGizmos, opts))
}

// GetGizmo loads one gizmo and runs the requested enrichment on it.
func (uc *GizmoUsecase) GetGizmo(ctx context.Context, url string, req domain.Enrichment) (*domain.GizmoView, error) {
	ctx, span := tracer.Start(ctx, "Gizmo.Usecase.GetGizmo")
	defer span.End()

	if err := uc.requireCollection("get gizmo", domain.CollectionGizmos); err != nil {
		return nil, err
	}
	if err := req.Validate(domain.CollectionGizmos); err != nil {
		return nil, err
	}

	gizmo, err := load[domain.Gizmo](ctx, uc.store, domain.CollectionGizmos, strings.TrimSpace(url))
	if err != nil {
		return nil, err
	}

	view := &domain.GizmoView{Gizmo: *gizmo}
	if err := uc.enrich(ctx, []*domain.GizmoView{view}, req); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}

func (uc *GizmoUsecase) find(ctx context.Context, q domain.Query) ([]*domain.GizmoView, error) {
	records, err := uc.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.GizmoView, 0, len(records))
	for _, record := range records {
		gizmo, err := decode[domain.Gizmo](record)
		if err != nil {
			return nil, err
		}
		views = append(views, &domain.GizmoView{Gizmo: *gizmo})
	}
	return views, nil
}

func (uc *GizmoUsecase) enrich(ctx context.Context, views []*domain.GizmoView, req domain.Enrichment) error {
	stages := commonStages(uc.enrichers, req,
		func(v *domain.GizmoView) domain.RecordMeta { return v.RecordMeta },
		func(v *domain.GizmoView) (**domain.Profile, **domain.VoteTally, *[]*domain.BroadcastView) {
			return &v.Author, &v.Votes, &v.Replies
		},
	)

	if req.CheckIfSubscribed {
		stages = append(stages, stage[*domain.GizmoView]{"checkIfSubscribed", func(ctx context.Context, v *domain.GizmoView) (err error) {
			v.IsSubscribed, err = uc.enrichers.subscribed(ctx, req.Requester, v.URL)
			return err
		}})
	}

	if req.FetchGizmoDependencies {
		stages = append(stages, stage[*domain.GizmoView]{"fetchGizmoDependencies", func(ctx context.Context, v *domain.GizmoView) (err error) {
			v.FullDependencies, err = uc.dependencies.GetGizmoDependencies(ctx, &v.Gizmo)
			return err
		}})
	}

	// the tree is written into the view itself
	if req.FetchAllDependencies {
		stages = append(stages, stage[*domain.GizmoView]{"fetchAllDependencies", func(ctx context.Context, v *domain.GizmoView) error {
			_, err := uc.dependencies.GetAllDependencies(ctx, v)
			return err
		}})
	}

	return runStages(ctx, domain.CollectionGizmos, views, stages)
}

// filter keeps the items keep reports true for, preserving order.
func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
