package gormstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// kindStore implements simplepages.KindStore for one GORM model R.
type kindStore[R any] struct {
	db     *gorm.DB
	kind   simplepages.Kind
	encode func(simplepages.Record) R
	decode func(R) simplepages.Record
}

// NewKindStores returns stores for the built-in kinds sharing db.
func NewKindStores(db *gorm.DB) []simplepages.KindStore {
	return []simplepages.KindStore{
		&kindStore[VideoRecord]{
			db:   db,
			kind: simplepages.KindVideo,
			encode: func(r simplepages.Record) VideoRecord {
				v := r.(*simplepages.Video)
				return VideoRecord{ContentColumns: contentColumns(v.Base()), VideoURL: v.VideoURL, SubtitlesURL: v.SubtitlesURL}
			},
			decode: func(row VideoRecord) simplepages.Record {
				return &simplepages.Video{ContentBase: row.base(), VideoURL: row.VideoURL, SubtitlesURL: row.SubtitlesURL}
			},
		},
		&kindStore[AudioRecord]{
			db:   db,
			kind: simplepages.KindAudio,
			encode: func(r simplepages.Record) AudioRecord {
				a := r.(*simplepages.Audio)
				return AudioRecord{ContentColumns: contentColumns(a.Base()), Transcript: a.Transcript}
			},
			decode: func(row AudioRecord) simplepages.Record {
				return &simplepages.Audio{ContentBase: row.base(), Transcript: row.Transcript}
			},
		},
		&kindStore[TextRecord]{
			db:   db,
			kind: simplepages.KindText,
			encode: func(r simplepages.Record) TextRecord {
				t := r.(*simplepages.Text)
				return TextRecord{ContentColumns: contentColumns(t.Base()), Body: t.Body}
			},
			decode: func(row TextRecord) simplepages.Record {
				return &simplepages.Text{ContentBase: row.base(), Body: row.Body}
			},
		},
	}
}

func (s *kindStore[R]) Kind() simplepages.Kind {
	return s.kind
}

func (s *kindStore[R]) Create(ctx context.Context, record simplepages.Record) error {
	if record.Kind() != s.kind {
		return fmt.Errorf("%w: %s record in %s store", simplepages.ErrUnknownKind, record.Kind(), s.kind)
	}
	row := s.encode(record)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s already exists", s.kind, record.Base().ID)
		}
		return fmt.Errorf("create %s: %w", s.kind, err)
	}
	return nil
}

func (s *kindStore[R]) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(new(R))
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", s.kind, res.Error)
	}
	if res.RowsAffected == 0 {
		return simplepages.ErrContentNotFound
	}
	return nil
}

func (s *kindStore[R]) BulkFetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]simplepages.Record, error) {
	result := make(map[uuid.UUID]simplepages.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []R
	if err := s.db.WithContext(ctx).Where("id IN ?", idStrings(ids)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.kind, err)
	}
	for _, row := range rows {
		record := s.decode(row)
		result[record.Base().ID] = record
	}
	return result, nil
}

// IncrementCounters issues one UPDATE whose new value is an expression over
// the stored counter. Ids sharing a delta use a plain "counter + n"; mixed
// deltas use a CASE over id.
func (s *kindStore[R]) IncrementCounters(ctx context.Context, deltas map[uuid.UUID]int64) (map[uuid.UUID]int64, error) {
	result := make(map[uuid.UUID]int64, len(deltas))
	if len(deltas) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(deltas))
	cases := make([]interface{}, 0, len(deltas)*2)
	uniform := true
	var first int64
	for id, n := range deltas {
		if len(ids) == 0 {
			first = n
		} else if n != first {
			uniform = false
		}
		ids = append(ids, id.String())
		cases = append(cases, id.String(), n)
	}

	var expr clause.Expr
	if uniform {
		expr = gorm.Expr("counter + ?", first)
	} else {
		var sql strings.Builder
		sql.WriteString("counter + CASE id")
		for range ids {
			sql.WriteString(" WHEN ? THEN ?")
		}
		sql.WriteString(" ELSE 0 END")
		expr = gorm.Expr(sql.String(), cases...)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(new(R)).Where("id IN ?", ids).UpdateColumn("counter", expr).Error; err != nil {
			return err
		}
		var rows []struct {
			ID      string
			Counter int64
		}
		if err := tx.Model(new(R)).Select("id, counter").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			id, err := uuid.Parse(row.ID)
			if err != nil {
				return err
			}
			result[id] = row.Counter
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("increment %s counters: %w", s.kind, err)
	}
	return result, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
