package usecase

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// DependencyResolver loads the gizmos a gizmo depends on.
type DependencyResolver struct {
	*base
}

func NewDependencyResolver(b *base) *DependencyResolver {
	return &DependencyResolver{base: b}
}

// resolution memoizes gizmo loads by url for one resolver call.
type resolution struct {
	store   Store
	mu      sync.Mutex
	entries map[string]*loadEntry
}

type loadEntry struct {
	once  sync.Once
	gizmo *domain.Gizmo
	err   error
}

func (r *DependencyResolver) newResolution() *resolution {
	return &resolution{store: r.store, entries: map[string]*loadEntry{}}
}

func (res *resolution) load(ctx context.Context, url string) (*domain.Gizmo, error) {
	res.mu.Lock()
	entry, ok := res.entries[url]
	if !ok {
		entry = &loadEntry{}
		res.entries[url] = entry
	}
	res.mu.Unlock()

	entry.once.Do(func() {
		entry.gizmo, entry.err = load[domain.Gizmo](ctx, res.store, domain.CollectionGizmos, url)
		if errors.Is(entry.err, domain.ErrNotFound) {
			entry.gizmo, entry.err = nil, nil
		}
	})
	return entry.gizmo, entry.err
}

// view returns a fresh view of the referenced gizmo. A reference to a gizmo
// outside the index yields a stub marked Missing.
func (res *resolution) view(ctx context.Context, dep domain.Dependency) (*domain.GizmoView, error) {
	gizmo, err := res.load(ctx, dep.URL)
	if err != nil {
		return nil, err
	}
	if gizmo == nil {
		return &domain.GizmoView{
			Gizmo: domain.Gizmo{
				RecordMeta: domain.RecordMeta{URL: dep.URL},
				GizmoName:  dep.Name,
			},
			Missing: true,
		}, nil
	}
	return &domain.GizmoView{Gizmo: *gizmo}, nil
}

func (res *resolution) level(ctx context.Context, deps []domain.Dependency) ([]*domain.GizmoView, error) {
	views := make([]*domain.GizmoView, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range deps {
		g.Go(func() (err error) {
			views[i], err = res.view(gctx, dep)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// expand fills node.ChildDependencies recursively. path holds the urls from
// the root to node; a dependency already on it is flagged Cyclic and not
// expanded.
func (res *resolution) expand(ctx context.Context, node *domain.GizmoView, path []string) error {
	if len(node.GizmoDependencies) == 0 {
		return nil
	}

	children, err := res.level(ctx, node.GizmoDependencies)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range children {
		if child.Missing {
			continue
		}
		if slices.Contains(path, child.URL) {
			child.Cyclic = true
			dependencyCycleTotal.Inc()
			continue
		}
		g.Go(func() error {
			return res.expand(gctx, child, append(slices.Clone(path), child.URL))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	node.ChildDependencies = make(map[int]*domain.GizmoView, len(children))
	for i, child := range children {
		node.ChildDependencies[i] = child
	}
	return nil
}

// GetAllDependencies resolves the full dependency tree of gizmo into
// ChildDependencies, keyed by sibling index at every level. A gizmo without
// dependencies is returned unchanged.
func (r *DependencyResolver) GetAllDependencies(ctx context.Context, gizmo *domain.GizmoView) (*domain.GizmoView, error) {
	ctx, span := tracer.Start(ctx, "Dependency.Resolver.GetAllDependencies")
	defer span.End()

	if len(gizmo.GizmoDependencies) == 0 {
		return gizmo, nil
	}
	if err := r.newResolution().expand(ctx, gizmo, []string{gizmo.URL}); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return gizmo, nil
}

// GetGizmoDependencies loads the gizmos gizmo depends on directly.
func (r *DependencyResolver) GetGizmoDependencies(ctx context.Context, gizmo *domain.Gizmo) ([]*domain.GizmoView, error) {
	return r.newResolution().level(ctx, gizmo.GizmoDependencies)
}

// GetPostDependencies loads the gizmos posts of gizmo depend on.
func (r *DependencyResolver) GetPostDependencies(ctx context.Context, gizmo *domain.Gizmo) ([]*domain.GizmoView, error) {
	return r.newResolution().level(ctx, gizmo.PostDependencies)
}
