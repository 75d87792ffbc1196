package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/infra/database/models"
)

const backendPostgres = "postgres"

// PostgresStore keeps collections in three tables: archives, records and one
// row per index entry.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AddArchive(ctx context.Context, url string) error {
	defer observe(backendPostgres, "addArchive", time.Now())
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(&models.Archive{URL: url}).Error
}

func (s *PostgresStore) RemoveArchive(ctx context.Context, url string) error {
	defer observe(backendPostgres, "removeArchive", time.Now())
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Record{}).Select("url").Where("origin = ?", url)
		if err := tx.Where("record_url IN (?)", owned).Delete(&models.RecordIndex{}).Error; err != nil {
			return err
		}
		if err := tx.Where("origin = ?", url).Delete(&models.Record{}).Error; err != nil {
			return err
		}
		return tx.Where("url = ?", url).Delete(&models.Archive{}).Error
	})
}

func (s *PostgresStore) ListArchives(ctx context.Context) ([]string, error) {
	defer observe(backendPostgres, "listArchives", time.Now())
	archives := []string{}
	err := s.db.WithContext(ctx).Model(&models.Archive{}).Order("url").Pluck("url", &archives).Error
	return archives, err
}

func (s *PostgresStore) Get(ctx context.Context, collection, url string) (domain.Record, error) {
	defer observe(backendPostgres, "get", time.Now())

	var row models.Record
	err := s.db.WithContext(ctx).Where("url = ? AND collection = ?", url, collection).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Record{}, domain.NotFoundError{Resource: collection}
	}
	if err != nil {
		return domain.Record{}, err
	}
	return toDomainRecord(row), nil
}

func toDomainRecord(row models.Record) domain.Record {
	return domain.Record{
		URL:        row.URL,
		Origin:     row.Origin,
		Collection: row.Collection,
		Value:      json.RawMessage(row.Value),
	}
}

func (s *PostgresStore) Put(ctx context.Context, record domain.Record) error {
	defer observe(backendPostgres, "put", time.Now())

	var entries []models.RecordIndex
	for name, keys := range record.Indexes {
		for _, key := range keys {
			str, num, err := keyParts(key)
			if err != nil {
				return fmt.Errorf("failed to split %s key of %s: %w", name, record.URL, err)
			}
			entries = append(entries, models.RecordIndex{
				RecordURL:  record.URL,
				Collection: record.Collection,
				Name:       name,
				Str:        str,
				Num:        num,
			})
		}
	}

	value := string(record.Value)
	if value == "" {
		value = "null"
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"collection", "origin", "value", "m_date"}),
		}).Create(&models.Record{
			URL:        record.URL,
			Collection: record.Collection,
			Origin:     record.Origin,
			Value:      value,
		}).Error
		if err != nil {
			return err
		}

		if err := tx.Where("record_url = ?", record.URL).Delete(&models.RecordIndex{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}

func (s *PostgresStore) Delete(ctx context.Context, collection, url string) error {
	defer observe(backendPostgres, "delete", time.Now())
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_url = ?", url).Delete(&models.RecordIndex{}).Error; err != nil {
			return err
		}
		return tx.Where("url = ? AND collection = ?", url, collection).Delete(&models.Record{}).Error
	})
}

// query builds the index scan for q. ok is false when the range is empty.
func (s *PostgresStore) query(ctx context.Context, q domain.Query) (*gorm.DB, bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&models.RecordIndex{}).
		Where("collection = ? AND name = ?", q.Collection, q.Index)

	switch q.Shape {
	case domain.ShapeEquals:
		str, num, err := keyParts(q.Equals)
		if err != nil {
			return nil, false, err
		}
		tx = tx.Where("str = ? AND num = ?", str, num)
	case domain.ShapeBetween:
		if q.Lower != nil && q.Upper != nil {
			cmp, err := compareKeys(q.Lower, q.Upper)
			if err != nil {
				return nil, false, err
			}
			if cmp >= 0 {
				return nil, false, nil
			}
		}
		if q.Lower != nil {
			cond, args, err := boundCondition(q.Lower, false)
			if err != nil {
				return nil, false, err
			}
			if cond != "" {
				tx = tx.Where(cond, args...)
			}
		}
		if q.Upper != nil {
			cond, args, err := boundCondition(q.Upper, true)
			if err != nil {
				return nil, false, err
			}
			if cond != "" {
				tx = tx.Where(cond, args...)
			}
		}
	}

	if q.Reverse {
		tx = tx.Order("str DESC, num DESC, record_url DESC")
	} else {
		tx = tx.Order("str, num, record_url")
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, true, nil
}

// boundCondition renders an inclusive lower or exclusive upper bound on the
// (str, num) pair. Keys of this schema are (num), (str) or (str, num).
func boundCondition(key domain.Key, upper bool) (string, []any, error) {
	var (
		str          string
		num          int64
		hasStr       bool
		hasNum       bool
		infiniteTail bool
	)
	for i, part := range key {
		switch v := part.(type) {
		case string:
			str, hasStr = v, true
		case int64:
			num, hasNum = v, true
		case int:
			num, hasNum = int64(v), true
		case domain.Inf:
			infiniteTail = true
		default:
			return "", nil, fmt.Errorf("unsupported key part %d of type %T", i, part)
		}
	}

	switch {
	case infiniteTail && !hasStr:
		// (Inf) is above every key; as a lower bound it admits nothing.
		if upper {
			return "", nil, nil
		}
		return "1 = 0", nil, nil
	case infiniteTail:
		if upper {
			return "str <= ?", []any{str}, nil
		}
		return "str > ?", []any{str}, nil
	case hasStr && hasNum:
		if upper {
			return "(str < ? OR (str = ? AND num < ?))", []any{str, str, num}, nil
		}
		return "(str > ? OR (str = ? AND num >= ?))", []any{str, str, num}, nil
	case hasStr:
		if upper {
			return "str < ?", []any{str}, nil
		}
		return "str >= ?", []any{str}, nil
	default:
		if upper {
			return "num < ?", []any{num}, nil
		}
		return "num >= ?", []any{num}, nil
	}
}

func (s *PostgresStore) Find(ctx context.Context, q domain.Query) ([]domain.Record, error) {
	defer observe(backendPostgres, "find", time.Now())

	records := []domain.Record{}
	tx, ok, err := s.query(ctx, q)
	if err != nil || !ok {
		return records, err
	}

	var rows []models.RecordIndex
	if err := tx.Preload("Record").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Record.URL == "" {
			continue
		}
		records = append(records, toDomainRecord(row.Record))
	}
	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context, q domain.Query) (int, error) {
	defer observe(backendPostgres, "count", time.Now())

	tx, ok, err := s.query(ctx, q)
	if err != nil || !ok {
		return 0, err
	}

	var count int64
	err = s.db.WithContext(ctx).Table("(?) AS entries", tx.Select("record_indexes.id")).Count(&count).Error
	return int(count), err
}

func (s *PostgresStore) Each(ctx context.Context, q domain.Query, fn func(domain.Record) error) error {
	records, err := s.Find(ctx, q)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Destroy(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		global := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := global.Delete(&models.RecordIndex{}).Error; err != nil {
			return err
		}
		if err := global.Delete(&models.Record{}).Error; err != nil {
			return err
		}
		return global.Delete(&models.Archive{}).Error
	})
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
