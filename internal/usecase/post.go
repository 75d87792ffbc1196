package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

type PostUsecase struct {
	*base
	enrichers    *enrichers
	gizmos       *GizmoUsecase
	dependencies *DependencyResolver
}

func NewPostUsecase(b *base, e *enrichers, gizmos *GizmoUsecase, dependencies *DependencyResolver) *PostUsecase {
	return &PostUsecase{base: b, enrichers: e, gizmos: gizmos, dependencies: dependencies}
}

// CreatePost writes a post made with the gizmo at input.GizmoURL.
func (uc *PostUsecase) CreatePost(ctx context.Context, archive string, input domain.PostInput) (string, error) {
	const op = "create post"
	if err := uc.requireCollection(op, domain.CollectionPosts); err != nil {
		return "", err
	}
	archiveURL, err := uc.archiveURL(op, archive)
	if err != nil {
		return "", err
	}

	gizmoURL := strings.TrimSpace(input.GizmoURL)
	if gizmoURL == "" {
		return "", domain.ErrGizmoRequired.With(op)
	}
	if _, _, _, err := parallel.ParseRecordURL(gizmoURL); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidReference.With(op), err)
	}

	createdAt := uc.now().UnixMilli()
	url := parallel.RecordURL(archiveURL, domain.CollectionPosts, strconv.FormatInt(createdAt, 10))
	post := &domain.Post{
		RecordMeta: domain.RecordMeta{URL: url, Origin: archiveURL},
		PostParams: input.PostParams,
		PostHTTP:   input.PostHTTP,
		PostText:   input.PostText,
		GizmoURL:   gizmoURL,
		CreatedAt:  createdAt,
		ReceivedAt: createdAt,
	}

	if err := uc.put(ctx, domain.CollectionPosts, post); err != nil {
		return "", err
	}
	return url, nil
}

func (uc *PostUsecase) ListPosts(ctx context.Context, req domain.ListPostsRequest) ([]*domain.PostView, error) {
	ctx, span := tracer.Start(ctx, "Post.Usecase.ListPosts")
	defer span.End()

	const op = "list posts"
	if err := uc.requireCollection(op, domain.CollectionPosts); err != nil {
		return nil, err
	}
	if err := req.Enrichment.Validate(domain.CollectionPosts); err != nil {
		return nil, err
	}
	opts, err := normalizeListOptions(uc.base, op, req.ListOptions)
	if err != nil {
		return nil, err
	}

	views, err := uc.find(ctx, ContentQuery(domain.CollectionPosts, opts))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if req.CurrentURL != "" {
		views = filter(views, func(v *domain.PostView) bool { return v.PostHTTP == req.CurrentURL })
	}

	if err := uc.enrich(ctx, views, req.Enrichment); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return views, nil
}

func (uc *PostUsecase) CountPosts(ctx context.Context, opts domain.ListOptions) (int, error) {
	const op = "count posts"
	if err := uc.requireCollection(op, domain.CollectionPosts); err != nil {
		return 0, err
	}
	opts, err := normalizeListOptions(uc.base, op, opts)
	if err != nil {
		return 0, err
	}
	return uc.store.Count(ctx, ContentQuery(domain.CollectionPosts, opts))
}

// GetPost loads a post with its author, votes and replies, and its gizmo
// with the full dependency tree.
func (uc *PostUsecase) GetPost(ctx context.Context, requester, url string) (*domain.PostView, error) {
	ctx, span := tracer.Start(ctx, "Post.Usecase.GetPost")
	defer span.End()

	const op = "get post"
	if err := uc.requireCollection(op, domain.CollectionPosts); err != nil {
		return nil, err
	}
	if requester == "" {
		return nil, domain.ErrRequesterRequired.With(op)
	}

	post, err := load[domain.Post](ctx, uc.store, domain.CollectionPosts, strings.TrimSpace(url))
	if err != nil {
		return nil, err
	}

	view := &domain.PostView{Post: *post}
	stages := commonStages(uc.enrichers, domain.Enrichment{FetchAuthor: true, CountVotes: true, FetchReplies: true},
		postMeta, postFields)
	stages = append(stages, uc.gizmoStage(domain.Enrichment{
		FetchAuthor:          true,
		CountVotes:           true,
		FetchReplies:         true,
		CheckIfSubscribed:    true,
		Requester:            requester,
		FetchAllDependencies: true,
	}))

	if err := runStages(ctx, domain.CollectionPosts, []*domain.PostView{view}, stages); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}

func (uc *PostUsecase) find(ctx context.Context, q domain.Query) ([]*domain.PostView, error) {
	records, err := uc.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.PostView, 0, len(records))
	for _, record := range records {
		post, err := decode[domain.Post](record)
		if err != nil {
			return nil, err
		}
		views = append(views, &domain.PostView{Post: *post})
	}
	return views, nil
}

func postMeta(v *domain.PostView) domain.RecordMeta { return v.RecordMeta }

func postFields(v *domain.PostView) (**domain.Profile, **domain.VoteTally, *[]*domain.BroadcastView) {
	return &v.Author, &v.Votes, &v.Replies
}

// gizmoStage attaches the gizmo a post was made with. A gizmo missing from
// the index leaves the field nil.
func (uc *PostUsecase) gizmoStage(req domain.Enrichment) stage[*domain.PostView] {
	return stage[*domain.PostView]{"fetchGizmo", func(ctx context.Context, v *domain.PostView) error {
		gizmo, err := uc.gizmos.GetGizmo(ctx, v.GizmoURL, req)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		v.Gizmo = gizmo
		return err
	}}
}

// enrich runs in two groups. Post dependencies are read from the post's
// gizmo, which the first group may attach.
func (uc *PostUsecase) enrich(ctx context.Context, views []*domain.PostView, req domain.Enrichment) error {
	stages := commonStages(uc.enrichers, req, postMeta, postFields)
	if req.FetchGizmo {
		stages = append(stages, uc.gizmoStage(domain.Enrichment{
			FetchAuthor:       true,
			CountVotes:        true,
			FetchReplies:      true,
			CheckIfSubscribed: true,
			Requester:         req.Requester,
		}))
	}
	if err := runStages(ctx, domain.CollectionPosts, views, stages); err != nil {
		return err
	}

	if !req.FetchPostDependencies {
		return nil
	}
	return runStages(ctx, domain.CollectionPosts, views, []stage[*domain.PostView]{
		{"fetchPostDependencies", func(ctx context.Context, v *domain.PostView) error {
			var gizmo *domain.Gizmo
			if v.Gizmo != nil {
				gizmo = &v.Gizmo.Gizmo
			} else {
				loaded, err := load[domain.Gizmo](ctx, uc.store, domain.CollectionGizmos, v.GizmoURL)
				if errors.Is(err, domain.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				gizmo = loaded
			}
			deps, err := uc.dependencies.GetPostDependencies(ctx, gizmo)
			v.PostDependencies = deps
			return err
		}},
	})
}
