package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

const backendBadger = "badger"

// Key layout:
//
//	a\x00<archive>                               scope membership
//	r\x00<collection>\x00<url>                   record envelope
//	i\x00<collection>\x00<index>\x00<key><url>   index entry, value is the url
//	o\x00<origin>\x00<collection>\x00<url>       records by origin
var (
	prefixArchive = []byte("a\x00")
	prefixRecord  = []byte("r\x00")
	prefixIndex   = []byte("i\x00")
	prefixOrigin  = []byte("o\x00")
)

type storedRecord struct {
	Origin  string              `json:"origin"`
	Value   json.RawMessage     `json:"value"`
	Indexes map[string][][]byte `json:"indexes,omitempty"`
}

type recordRef struct {
	collection string
	url        string
}

// BadgerStore is the embedded collection store.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// update runs fn in a read-write transaction and reruns it when a concurrent
// commit invalidated what it read. Writes to the same record race silently and
// the last commit wins.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func segment(s string) []byte {
	return append([]byte(s), 0x00)
}

func archiveKey(url string) []byte {
	return concat(prefixArchive, []byte(url))
}

func recordKey(collection, url string) []byte {
	return concat(prefixRecord, segment(collection), []byte(url))
}

func indexPrefix(collection, index string) []byte {
	return concat(prefixIndex, segment(collection), segment(index))
}

func originPrefix(origin string) []byte {
	return concat(prefixOrigin, segment(origin))
}

func originKey(origin, collection, url string) []byte {
	return concat(originPrefix(origin), segment(collection), []byte(url))
}

func (s *BadgerStore) AddArchive(ctx context.Context, url string) error {
	defer observe(backendBadger, "addArchive", time.Now())
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(archiveKey(url), nil)
	})
}

func (s *BadgerStore) RemoveArchive(ctx context.Context, url string) error {
	defer observe(backendBadger, "removeArchive", time.Now())

	var targets []recordRef
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := originPrefix(url)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			rest := it.Item().Key()[len(prefix):]
			i := bytes.IndexByte(rest, 0x00)
			if i < 0 {
				continue
			}
			targets = append(targets, recordRef{
				collection: string(rest[:i]),
				url:        string(rest[i+1:]),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.deleteBatch(ctx, targets); err != nil {
		return fmt.Errorf("failed to remove records of %s: %w", url, err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(archiveKey(url))
	})
}

// deleteBatch deletes records in one transaction, splitting the batch when
// it outgrows a single transaction.
func (s *BadgerStore) deleteBatch(ctx context.Context, targets []recordRef) error {
	if len(targets) == 0 {
		return nil
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, t := range targets {
			if _, err := deleteRecord(txn, t.collection, t.url); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) && len(targets) > 1 {
		mid := len(targets) / 2
		if err := s.deleteBatch(ctx, targets[:mid]); err != nil {
			return err
		}
		return s.deleteBatch(ctx, targets[mid:])
	}
	return err
}

func (s *BadgerStore) ListArchives(ctx context.Context) ([]string, error) {
	defer observe(backendBadger, "listArchives", time.Now())

	archives := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixArchive
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefixArchive); it.Next() {
			archives = append(archives, string(it.Item().Key()[len(prefixArchive):]))
		}
		return nil
	})
	return archives, err
}

func (s *BadgerStore) Get(ctx context.Context, collection, url string) (domain.Record, error) {
	defer observe(backendBadger, "get", time.Now())

	var record domain.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = loadRecord(txn, collection, url)
		return err
	})
	return record, err
}

func loadRecord(txn *badger.Txn, collection, url string) (domain.Record, error) {
	item, err := txn.Get(recordKey(collection, url))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Record{}, domain.NotFoundError{Resource: collection}
	}
	if err != nil {
		return domain.Record{}, err
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Record{}, err
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Record{}, fmt.Errorf("corrupt record %s: %w", url, err)
	}

	return domain.Record{
		URL:        url,
		Origin:     stored.Origin,
		Collection: collection,
		Value:      stored.Value,
	}, nil
}

func (s *BadgerStore) Put(ctx context.Context, record domain.Record) error {
	defer observe(backendBadger, "put", time.Now())

	encoded := make(map[string][][]byte, len(record.Indexes))
	for name, keys := range record.Indexes {
		for _, key := range keys {
			enc, err := encodeKey(key)
			if err != nil {
				return fmt.Errorf("failed to encode %s key of %s: %w", name, record.URL, err)
			}
			encoded[name] = append(encoded[name], enc)
		}
	}

	value, err := json.Marshal(storedRecord{
		Origin:  record.Origin,
		Value:   record.Value,
		Indexes: encoded,
	})
	if err != nil {
		return err
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := deleteRecord(txn, record.Collection, record.URL); err != nil {
			return err
		}
		if err := txn.Set(recordKey(record.Collection, record.URL), value); err != nil {
			return err
		}
		for name, encs := range encoded {
			prefix := indexPrefix(record.Collection, name)
			for _, enc := range encs {
				if err := txn.Set(concat(prefix, enc, []byte(record.URL)), []byte(record.URL)); err != nil {
					return err
				}
			}
		}
		return txn.Set(originKey(record.Origin, record.Collection, record.URL), nil)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, collection, url string) error {
	defer observe(backendBadger, "delete", time.Now())
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := deleteRecord(txn, collection, url)
		return err
	})
}

// deleteRecord removes a record with its index and origin entries.
func deleteRecord(txn *badger.Txn, collection, url string) (bool, error) {
	key := recordKey(collection, url)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false, fmt.Errorf("corrupt record %s: %w", url, err)
	}

	for name, encs := range stored.Indexes {
		prefix := indexPrefix(collection, name)
		for _, enc := range encs {
			if err := txn.Delete(concat(prefix, enc, []byte(url))); err != nil {
				return false, err
			}
		}
	}
	if err := txn.Delete(originKey(stored.Origin, collection, url)); err != nil {
		return false, err
	}
	return true, txn.Delete(key)
}

func (s *BadgerStore) Find(ctx context.Context, q domain.Query) ([]domain.Record, error) {
	defer observe(backendBadger, "find", time.Now())

	records := []domain.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, q, func(url string) error {
			record, err := loadRecord(txn, q.Collection, url)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}

func (s *BadgerStore) Count(ctx context.Context, q domain.Query) (int, error) {
	defer observe(backendBadger, "count", time.Now())

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, q, func(string) error {
			count++
			return nil
		})
	})
	return count, err
}

func (s *BadgerStore) Each(ctx context.Context, q domain.Query, fn func(domain.Record) error) error {
	defer observe(backendBadger, "each", time.Now())

	return s.db.View(func(txn *badger.Txn) error {
		return scan(txn, q, func(url string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, err := loadRecord(txn, q.Collection, url)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return fn(record)
		})
	})
}

// scan walks the index entries selected by q in iteration order, applying
// offset and limit, and hands each record url to fn.
func scan(txn *badger.Txn, q domain.Query, fn func(url string) error) error {
	prefix := indexPrefix(q.Collection, q.Index)
	iterPrefix := prefix

	var lower, upper []byte
	switch q.Shape {
	case domain.ShapeEquals:
		enc, err := encodeKey(q.Equals)
		if err != nil {
			return err
		}
		iterPrefix = concat(prefix, enc)
	case domain.ShapeBetween:
		var err error
		if q.Lower != nil {
			if lower, err = encodeKey(q.Lower); err != nil {
				return err
			}
		}
		if q.Upper != nil {
			if upper, err = encodeKey(q.Upper); err != nil {
				return err
			}
		}
		if lower != nil && upper != nil && bytes.Compare(lower, upper) >= 0 {
			return nil
		}
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = q.Reverse
	opts.Prefix = iterPrefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var start []byte
	switch {
	case q.Reverse && upper != nil:
		start = concat(prefix, upper)
	case q.Reverse:
		start = concat(iterPrefix, []byte{0xFF})
	case lower != nil:
		start = concat(prefix, lower)
	default:
		start = iterPrefix
	}

	skipped, emitted := 0, 0
	for it.Seek(start); it.ValidForPrefix(iterPrefix); it.Next() {
		rest := it.Item().Key()[len(prefix):]
		if q.Reverse && lower != nil && bytes.Compare(rest, lower) < 0 {
			break
		}
		if !q.Reverse && upper != nil && bytes.Compare(rest, upper) >= 0 {
			break
		}

		if skipped < q.Offset {
			skipped++
			continue
		}

		url, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(url)); err != nil {
			return err
		}

		emitted++
		if q.Limit > 0 && emitted >= q.Limit {
			break
		}
	}
	return nil
}

func (s *BadgerStore) Destroy(ctx context.Context) error {
	return s.db.DropAll()
}

// Close closes the database. Closing twice is a no-op.
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
