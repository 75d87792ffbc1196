package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/infra/database"
	"github.com/totegamma/concrnt-parallel/internal/infra/repository"
)

const (
	alice = "cc://alice"
	bob   = "cc://bob"
	carol = "cc://carol"
)

// stepClock advances one millisecond on every reading so records created in
// a row never share a createdAt key.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.UnixMilli(1_000_000)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockFiles struct {
	written   map[string][]byte
	committed []string
}

func (m *mockFiles) WriteFile(ctx context.Context, archive, name string, data []byte) error {
	if m.written == nil {
		m.written = map[string][]byte{}
	}
	m.written[archive+"/"+name] = data
	return nil
}

func (m *mockFiles) Commit(ctx context.Context, archive string) error {
	m.committed = append(m.committed, archive)
	return nil
}

// countingStore counts record reads per collection.
type countingStore struct {
	Store
	mu   sync.Mutex
	gets map[string]int
}

func (s *countingStore) Get(ctx context.Context, collection, url string) (domain.Record, error) {
	s.mu.Lock()
	if s.gets == nil {
		s.gets = map[string]int{}
	}
	s.gets[collection]++
	s.mu.Unlock()
	return s.Store.Get(ctx, collection, url)
}

func (s *countingStore) count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[collection]
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = nil
}

type testEnv struct {
	idx       *Index
	store     *repository.BadgerStore
	publisher *mockPublisher
	files     *mockFiles
}

func newTestStore(t *testing.T) *repository.BadgerStore {
	t.Helper()
	db, err := database.NewBadger("")
	require.NoError(t, err)
	store := repository.NewBadgerStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func openTestIndex(t *testing.T, store Store, variant domain.Variant, owner string) (*Index, *mockPublisher, *mockFiles) {
	t.Helper()
	publisher := &mockPublisher{}
	files := &mockFiles{}
	idx, err := Open(context.Background(), Deps{
		Store:     store,
		Files:     files,
		Publisher: publisher,
	}, Options{
		Owner:   owner,
		Variant: variant,
		Clock:   newStepClock().Now,
	})
	require.NoError(t, err)
	t.Cleanup(idx.Wait)
	return idx, publisher, files
}

func newTestEnv(t *testing.T, variant domain.Variant) *testEnv {
	t.Helper()
	store := newTestStore(t)
	idx, publisher, files := openTestIndex(t, store, variant, "")
	return &testEnv{idx: idx, store: store, publisher: publisher, files: files}
}

func (env *testEnv) profile(t *testing.T, archive, name string) {
	t.Helper()
	require.NoError(t, env.idx.Profiles.SetProfile(context.Background(), archive, domain.ProfileInput{Name: &name}))
}

func ptr[T any](v T) *T { return &v }
