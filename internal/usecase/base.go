package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

var tracer = otel.Tracer("usecase")

// storable is an entity that can be written to a collection.
type storable interface {
	Meta() domain.RecordMeta
	Indexes() map[string][]domain.Key
}

// base carries what every usecase of one index shares.
type base struct {
	store     Store
	files     ArchiveFiles
	publisher EventPublisher
	owner     string
	variant   domain.Variant
	now       func() time.Time
	logger    *slog.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }

// archiveURL normalizes ref, reporting a precondition failure for op.
func (b *base) archiveURL(op, ref string) (string, error) {
	archive, err := parallel.ArchiveURL(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidReference.With(op), err)
	}
	return archive, nil
}

func (b *base) requireCollection(op, collection string) error {
	if !b.variant.HasCollection(collection) {
		return domain.ErrUnsupportedVariant.With(op)
	}
	return nil
}

func (b *base) publish(ctx context.Context, typ domain.EventType, url, collection, origin string) {
	err := b.publisher.Publish(ctx, domain.Event{
		Type:       typ,
		URL:        url,
		Collection: collection,
		Origin:     origin,
		Timestamp:  b.now(),
	})
	if err != nil {
		b.logger.WarnContext(ctx, "failed to publish event",
			slog.String("module", "usecase"),
			slog.String("type", string(typ)),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}

func (b *base) put(ctx context.Context, collection string, entity storable) error {
	meta := entity.Meta()
	value, err := json.Marshal(entity)
	if err != nil {
		return err
	}

	err = b.store.Put(ctx, domain.Record{
		URL:        meta.URL,
		Origin:     meta.Origin,
		Collection: collection,
		Value:      value,
		Indexes:    entity.Indexes(),
	})
	if err != nil {
		return err
	}

	b.publish(ctx, domain.EventRecordPut, meta.URL, collection, meta.Origin)
	return nil
}

// decode unmarshals a stored record into its entity type and stamps the
// record meta.
func decode[T any, PT interface {
	*T
	SetMeta(url, origin string)
}](record domain.Record) (*T, error) {
	var v T
	if err := json.Unmarshal(record.Value, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", record.URL, err)
	}
	PT(&v).SetMeta(record.URL, record.Origin)
	return &v, nil
}

func load[T any, PT interface {
	*T
	SetMeta(url, origin string)
}](ctx context.Context, store Store, collection, url string) (*T, error) {
	record, err := store.Get(ctx, collection, url)
	if err != nil {
		return nil, err
	}
	return decode[T, PT](record)
}

func profileURL(archive string) string {
	return parallel.RecordURL(archive, domain.CollectionProfile, "")
}

func (b *base) getProfile(ctx context.Context, archive string) (*domain.Profile, error) {
	return load[domain.Profile](ctx, b.store, domain.CollectionProfile, profileURL(archive))
}

// lookupAuthor is getProfile with a missing profile reported as nil.
func (b *base) lookupAuthor(ctx context.Context, archive string) (*domain.Profile, error) {
	profile, err := b.getProfile(ctx, archive)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}

// updateProfile applies fn to the stored profile of archive and writes it
// back. It returns the number of changed records, zero when the archive has
// no profile. Concurrent updates of the same profile are not serialized and
// the last write wins.
func (b *base) updateProfile(ctx context.Context, archive string, fn func(*domain.Profile) error) (int, error) {
	profile, err := b.getProfile(ctx, archive)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := fn(profile); err != nil {
		return 0, err
	}
	profile.Normalize()

	if err := b.put(ctx, domain.CollectionProfile, profile); err != nil {
		return 0, err
	}
	return 1, nil
}
