package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// RecordUsecase reads and retracts single records by url.
type RecordUsecase struct {
	*base
}

func NewRecordUsecase(b *base) *RecordUsecase {
	return &RecordUsecase{base: b}
}

// Get loads the record at url and decodes it into the entity of its
// collection.
func (uc *RecordUsecase) Get(ctx context.Context, url string) (any, error) {
	url = strings.TrimSpace(url)
	_, collection, _, err := parallel.ParseRecordURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidReference.With("get record"), err)
	}

	switch collection {
	case domain.CollectionProfile:
		return loadAny[domain.Profile](ctx, uc.store, collection, url)
	case domain.CollectionBroadcasts:
		return loadAny[domain.Broadcast](ctx, uc.store, collection, url)
	case domain.CollectionVotes:
		return loadAny[domain.Vote](ctx, uc.store, collection, url)
	}
	if err := uc.requireCollection("get record", collection); err != nil {
		return nil, err
	}
	switch collection {
	case domain.CollectionGizmos:
		return loadAny[domain.Gizmo](ctx, uc.store, collection, url)
	case domain.CollectionPosts:
		return loadAny[domain.Post](ctx, uc.store, collection, url)
	}
	return nil, domain.NotFoundError{Resource: url}
}

// loadAny is load without a typed nil on failure.
func loadAny[T any, PT interface {
	*T
	SetMeta(url, origin string)
}](ctx context.Context, store Store, collection, url string) (any, error) {
	v, err := load[T, PT](ctx, store, collection, url)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Retract deletes a content item or vote authored by archive. Profiles are
// not retractable; they go away with their archive.
func (uc *RecordUsecase) Retract(ctx context.Context, archive, url string) error {
	ctx, span := tracer.Start(ctx, "Record.Usecase.Retract")
	defer span.End()

	const op = "retract"
	archiveURL, err := uc.archiveURL(op, archive)
	if err != nil {
		return err
	}

	url = strings.TrimSpace(url)
	owner, collection, _, err := parallel.ParseRecordURL(url)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidReference.With(op), err)
	}
	if collection == domain.CollectionProfile {
		return domain.ErrNotRetractable.With(op)
	}
	if err := uc.requireCollection(op, collection); err != nil {
		return err
	}

	record, err := uc.store.Get(ctx, collection, url)
	if err != nil {
		return err
	}
	if record.Origin != archiveURL || owner != archiveURL {
		return domain.ErrNotOwner.With(op)
	}

	if err := uc.store.Delete(ctx, collection, url); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to retract %s: %w", url, err)
	}
	uc.publish(ctx, domain.EventRecordDelete, url, collection, archiveURL)
	return nil
}
