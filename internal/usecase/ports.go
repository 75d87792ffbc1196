package usecase

import (
	"context"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// Store is the collection store the index is built on. Records belong to the
// archive named by their Origin; removing an archive removes its records.
type Store interface {
	AddArchive(ctx context.Context, url string) error
	RemoveArchive(ctx context.Context, url string) error
	ListArchives(ctx context.Context) ([]string, error)

	Get(ctx context.Context, collection, url string) (domain.Record, error)
	Put(ctx context.Context, record domain.Record) error
	Delete(ctx context.Context, collection, url string) error

	Find(ctx context.Context, q domain.Query) ([]domain.Record, error)
	Count(ctx context.Context, q domain.Query) (int, error)
	Each(ctx context.Context, q domain.Query, fn func(domain.Record) error) error

	// Destroy deletes every archive and record.
	Destroy(ctx context.Context) error
	Close() error
}

// ArchiveFiles writes files into an archive. Writes become visible on Commit.
type ArchiveFiles interface {
	WriteFile(ctx context.Context, archive, name string, data []byte) error
	Commit(ctx context.Context, archive string) error
}

// EventPublisher receives every change made through the index.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
