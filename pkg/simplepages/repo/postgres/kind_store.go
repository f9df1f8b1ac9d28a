package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// kindTable describes how one kind maps onto its table. The shared columns
// (id, title, counter, created_at) come first in every query.
type kindTable struct {
	kind    simplepages.Kind
	table   string
	columns []string
	// values returns the kind-specific column values of a record.
	values func(simplepages.Record) []interface{}
	// scan allocates a record and returns the destinations of its
	// kind-specific columns.
	scan func() (simplepages.Record, []interface{})
}

var kindTables = []kindTable{
	{
		kind:    simplepages.KindVideo,
		table:   "videos",
		columns: []string{"video_url", "subtitles_url"},
		values: func(r simplepages.Record) []interface{} {
			v := r.(*simplepages.Video)
			return []interface{}{v.VideoURL, v.SubtitlesURL}
		},
		scan: func() (simplepages.Record, []interface{}) {
			v := &simplepages.Video{}
			return v, []interface{}{&v.VideoURL, &v.SubtitlesURL}
		},
	},
	{
		kind:    simplepages.KindAudio,
		table:   "audios",
		columns: []string{"transcript"},
		values: func(r simplepages.Record) []interface{} {
			return []interface{}{r.(*simplepages.Audio).Transcript}
		},
		scan: func() (simplepages.Record, []interface{}) {
			a := &simplepages.Audio{}
			return a, []interface{}{&a.Transcript}
		},
	},
	{
		kind:    simplepages.KindText,
		table:   "texts",
		columns: []string{"body"},
		values: func(r simplepages.Record) []interface{} {
			return []interface{}{r.(*simplepages.Text).Body}
		},
		scan: func() (simplepages.Record, []interface{}) {
			t := &simplepages.Text{}
			return t, []interface{}{&t.Body}
		},
	},
}

// KindStore implements simplepages.KindStore over one kind's table.
type KindStore struct {
	db    DBTX
	table kindTable
}

// NewKindStores returns stores for the built-in kinds sharing db.
func NewKindStores(db DBTX) []simplepages.KindStore {
	stores := make([]simplepages.KindStore, 0, len(kindTables))
	for _, t := range kindTables {
		stores = append(stores, &KindStore{db: db, table: t})
	}
	return stores
}

func (s *KindStore) Kind() simplepages.Kind {
	return s.table.kind
}

func (s *KindStore) Create(ctx context.Context, record simplepages.Record) error {
	if record.Kind() != s.table.kind {
		return fmt.Errorf("%w: %s record in %s store", simplepages.ErrUnknownKind, record.Kind(), s.table.kind)
	}

	columns := append([]string{"id", "title", "counter", "created_at"}, s.table.columns...)
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	base := record.Base()
	args := append([]interface{}{base.ID, base.Title, base.Counter, base.CreatedAt}, s.table.values(record)...)
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s %s already exists", s.table.kind, base.ID)
		}
		return handlePostgresError("create "+s.table.table, err)
	}
	return nil
}

func (s *KindStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table.table), id)
	if err != nil {
		return handlePostgresError("delete "+s.table.table, err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrContentNotFound
	}
	return nil
}

// BulkFetch loads every requested row with one query.
func (s *KindStore) BulkFetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]simplepages.Record, error) {
	result := make(map[uuid.UUID]simplepages.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	columns := append([]string{"id", "title", "counter", "created_at"}, s.table.columns...)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1::text[]::uuid[])",
		strings.Join(columns, ", "), s.table.table)

	rows, err := s.db.Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, handlePostgresError("fetch "+s.table.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		record, extra := s.table.scan()
		base := record.Base()
		dest := append([]interface{}{&base.ID, &base.Title, &base.Counter, &base.CreatedAt}, extra...)
		if err := rows.Scan(dest...); err != nil {
			return nil, handlePostgresError("scan "+s.table.table, err)
		}
		base.CreatedAt = base.CreatedAt.UTC()
		result[base.ID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("fetch "+s.table.table, err)
	}
	return result, nil
}

// IncrementCounters applies every delta in one UPDATE. The new value is
// computed from the row's current counter, so concurrent callers serialize
// on the row lock instead of overwriting each other.
func (s *KindStore) IncrementCounters(ctx context.Context, deltas map[uuid.UUID]int64) (map[uuid.UUID]int64, error) {
	result := make(map[uuid.UUID]int64, len(deltas))
	if len(deltas) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(deltas))
	amounts := make([]int64, 0, len(deltas))
	for id, n := range deltas {
		ids = append(ids, id.String())
		amounts = append(amounts, n)
	}

	query := fmt.Sprintf(`
		UPDATE %[1]s AS t SET counter = t.counter + d.n
		FROM (SELECT unnest($1::text[])::uuid AS id, unnest($2::bigint[]) AS n) AS d
		WHERE t.id = d.id
		RETURNING t.id, t.counter`, s.table.table)

	rows, err := s.db.Query(ctx, query, ids, amounts)
	if err != nil {
		return nil, handlePostgresError("increment "+s.table.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var counter int64
		if err := rows.Scan(&id, &counter); err != nil {
			return nil, handlePostgresError("scan counter", err)
		}
		result[id] = counter
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("increment "+s.table.table, err)
	}
	return result, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
