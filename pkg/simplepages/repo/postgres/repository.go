package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Repository implements simplepages.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) simplepages.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) simplepages.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "placements_page_wrapper_key" {
				return simplepages.ErrDuplicatePlacement
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			switch pgErr.ConstraintName {
			case "placements_page_fk":
				return simplepages.ErrPageNotFound
			case "placements_wrapper_fk":
				return simplepages.ErrWrapperNotFound
			}
			return fmt.Errorf("referenced record not found in %s", operation)
		case "23514": // check_violation
			return fmt.Errorf("check %s violated in %s", pgErr.ConstraintName, operation)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Page operations

func (r *Repository) CreatePage(ctx context.Context, page *simplepages.Page) error {
	query := `INSERT INTO pages (id, title, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, page.ID, page.Title, page.CreatedAt); err != nil {
		return handlePostgresError("create page", err)
	}
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplepages.Page, error) {
	query := `SELECT id, title, created_at FROM pages WHERE id = $1`

	var page simplepages.Page
	err := r.db.QueryRow(ctx, query, id).Scan(&page.ID, &page.Title, &page.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepages.ErrPageNotFound
		}
		return nil, handlePostgresError("get page", err)
	}
	page.CreatedAt = page.CreatedAt.UTC()
	return &page, nil
}

// DeletePage relies on placements_page_fk cascading.
func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete page", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrPageNotFound
	}
	return nil
}

const pageSummaryColumns = `
	SELECT p.id, p.title, p.created_at, COUNT(pl.id)
	FROM pages p
	LEFT JOIN placements pl ON pl.page_id = p.id`

func scanPageSummary(row pgx.Row) (*simplepages.PageSummary, error) {
	var summary simplepages.PageSummary
	if err := row.Scan(&summary.ID, &summary.Title, &summary.CreatedAt, &summary.PlacementCount); err != nil {
		return nil, err
	}
	summary.CreatedAt = summary.CreatedAt.UTC()
	return &summary, nil
}

func (r *Repository) GetPageSummary(ctx context.Context, id uuid.UUID) (*simplepages.PageSummary, error) {
	query := pageSummaryColumns + ` WHERE p.id = $1 GROUP BY p.id`

	summary, err := scanPageSummary(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepages.ErrPageNotFound
		}
		return nil, handlePostgresError("get page summary", err)
	}
	return summary, nil
}

func (r *Repository) ListPages(ctx context.Context, params simplepages.ListPagesParams) ([]*simplepages.PageSummary, error) {
	query := pageSummaryColumns + `
		GROUP BY p.id
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1::bigint OFFSET $2`

	var limit *int
	if params.Limit > 0 {
		limit = &params.Limit
	}

	rows, err := r.db.Query(ctx, query, limit, params.Offset)
	if err != nil {
		return nil, handlePostgresError("list pages", err)
	}
	defer rows.Close()

	var summaries []*simplepages.PageSummary
	for rows.Next() {
		summary, err := scanPageSummary(rows)
		if err != nil {
			return nil, handlePostgresError("scan page", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list pages", err)
	}
	return summaries, nil
}

func (r *Repository) CountPages(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count); err != nil {
		return 0, handlePostgresError("count pages", err)
	}
	return count, nil
}

// Wrapper operations

func (r *Repository) GetOrCreateWrapper(ctx context.Context, ref simplepages.ContentRef) (*simplepages.Wrapper, error) {
	insert := `
		INSERT INTO content_wrappers (id, kind, content_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, content_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, insert, uuid.New(), string(ref.Kind), ref.ID, time.Now().UTC()); err != nil {
		return nil, handlePostgresError("create wrapper", err)
	}

	query := `SELECT id, kind, content_id, created_at FROM content_wrappers WHERE kind = $1 AND content_id = $2`
	wrapper, err := scanWrapper(r.db.QueryRow(ctx, query, string(ref.Kind), ref.ID))
	if err != nil {
		return nil, handlePostgresError("get wrapper", err)
	}
	return wrapper, nil
}

func scanWrapper(row pgx.Row) (*simplepages.Wrapper, error) {
	var wrapper simplepages.Wrapper
	var kind string
	if err := row.Scan(&wrapper.ID, &kind, &wrapper.ContentID, &wrapper.CreatedAt); err != nil {
		return nil, err
	}
	wrapper.Kind = simplepages.Kind(kind)
	wrapper.CreatedAt = wrapper.CreatedAt.UTC()
	return &wrapper, nil
}

func (r *Repository) GetWrapper(ctx context.Context, id uuid.UUID) (*simplepages.Wrapper, error) {
	query := `SELECT id, kind, content_id, created_at FROM content_wrappers WHERE id = $1`
	wrapper, err := scanWrapper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepages.ErrWrapperNotFound
		}
		return nil, handlePostgresError("get wrapper", err)
	}
	return wrapper, nil
}

// DeleteWrapper relies on placements_wrapper_fk cascading.
func (r *Repository) DeleteWrapper(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_wrappers WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete wrapper", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrWrapperNotFound
	}
	return nil
}

// Placement operations

func (r *Repository) AppendPlacement(ctx context.Context, placement *simplepages.Placement) error {
	// Order 0 asks for the next slot on the page.
	query := `
		INSERT INTO placements (id, page_id, wrapper_id, sort_order, alias, created_at)
		SELECT $1, $2, $3,
			CASE WHEN $4::integer > 0 THEN $4::integer
				ELSE COALESCE((SELECT MAX(sort_order) FROM placements WHERE page_id = $2), 0) + 1
			END,
			NULLIF($5, ''), $6
		RETURNING sort_order, seq`

	createdAt := time.Now().UTC()
	err := r.db.QueryRow(ctx, query,
		placement.ID, placement.PageID, placement.WrapperID,
		placement.Order, placement.Alias, createdAt,
	).Scan(&placement.Order, &placement.Seq)
	if err != nil {
		return handlePostgresError("append placement", err)
	}
	placement.CreatedAt = createdAt
	return nil
}

func (r *Repository) GetPlacement(ctx context.Context, id uuid.UUID) (*simplepages.Placement, error) {
	query := `
		SELECT id, page_id, wrapper_id, sort_order, COALESCE(alias, ''), seq, created_at
		FROM placements WHERE id = $1`

	var p simplepages.Placement
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.PageID, &p.WrapperID, &p.Order, &p.Alias, &p.Seq, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepages.ErrPlacementNotFound
		}
		return nil, handlePostgresError("get placement", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (r *Repository) ListPlacements(ctx context.Context, pageID uuid.UUID) ([]*simplepages.OrderedPlacement, error) {
	query := `
		SELECT pl.id, pl.page_id, pl.wrapper_id, pl.sort_order, COALESCE(pl.alias, ''), pl.seq, pl.created_at,
		       w.id, w.kind, w.content_id, w.created_at
		FROM placements pl
		LEFT JOIN content_wrappers w ON w.id = pl.wrapper_id
		WHERE pl.page_id = $1
		ORDER BY pl.sort_order ASC, pl.seq ASC`

	rows, err := r.db.Query(ctx, query, pageID)
	if err != nil {
		return nil, handlePostgresError("list placements", err)
	}
	defer rows.Close()

	result := make([]*simplepages.OrderedPlacement, 0)
	for rows.Next() {
		var op simplepages.OrderedPlacement
		var wrapperID, contentID *uuid.UUID
		var kind *string
		var wrapperCreated *time.Time
		if err := rows.Scan(
			&op.ID, &op.PageID, &op.WrapperID, &op.Order, &op.Alias, &op.Seq, &op.CreatedAt,
			&wrapperID, &kind, &contentID, &wrapperCreated,
		); err != nil {
			return nil, handlePostgresError("scan placement", err)
		}
		op.CreatedAt = op.CreatedAt.UTC()
		if wrapperID != nil {
			op.Wrapper = &simplepages.Wrapper{
				ID:        *wrapperID,
				Kind:      simplepages.Kind(*kind),
				ContentID: *contentID,
				CreatedAt: wrapperCreated.UTC(),
			}
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list placements", err)
	}
	return result, nil
}

func (r *Repository) updatePlacement(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return handlePostgresError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrPlacementNotFound
	}
	return nil
}

func (r *Repository) ReorderPlacement(ctx context.Context, id uuid.UUID, order int) error {
	return r.updatePlacement(ctx, "reorder placement",
		`UPDATE placements SET sort_order = $2 WHERE id = $1`, id, order)
}

func (r *Repository) SetPlacementAlias(ctx context.Context, id uuid.UUID, alias string) error {
	return r.updatePlacement(ctx, "set placement alias",
		`UPDATE placements SET alias = NULLIF($2, '') WHERE id = $1`, id, alias)
}

func (r *Repository) DeletePlacement(ctx context.Context, id uuid.UUID) error {
	return r.updatePlacement(ctx, "delete placement",
		`DELETE FROM placements WHERE id = $1`, id)
}
