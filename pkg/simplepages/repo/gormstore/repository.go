// Package gormstore implements the simplepages repositories on GORM. It is
// exercised with SQLite (github.com/glebarez/sqlite) and needs no cgo.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository implements simplepages.Repository using GORM
type Repository struct {
	db *gorm.DB
}

// New creates a new GORM repository. Tables must exist; see AutoMigrate.
func New(db *gorm.DB) simplepages.Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}

// Page operations

func (r *Repository) CreatePage(ctx context.Context, page *simplepages.Page) error {
	record := PageRecord{
		ID:        page.ID.String(),
		Title:     page.Title,
		CreatedAt: page.CreatedAt.UnixNano(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplepages.Page, error) {
	var record PageRecord
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, simplepages.ErrPageNotFound
		}
		return nil, fmt.Errorf("get page: %w", err)
	}
	page := record.toPage()
	return &page, nil
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id.String()).Delete(&PageRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete page: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return simplepages.ErrPageNotFound
		}
		if err := tx.Where("page_id = ?", id.String()).Delete(&PlacementRecord{}).Error; err != nil {
			return fmt.Errorf("delete page placements: %w", err)
		}
		return nil
	})
}

type pageSummaryRow struct {
	ID             string
	Title          string
	CreatedAt      int64
	PlacementCount int64
}

func (row pageSummaryRow) toSummary() *simplepages.PageSummary {
	page := PageRecord{ID: row.ID, Title: row.Title, CreatedAt: row.CreatedAt}.toPage()
	return &simplepages.PageSummary{Page: page, PlacementCount: row.PlacementCount}
}

func (r *Repository) summaries(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("pages AS p").
		Select("p.id, p.title, p.created_at, COUNT(pl.id) AS placement_count").
		Joins("LEFT JOIN placements pl ON pl.page_id = p.id").
		Group("p.id, p.title, p.created_at")
}

func (r *Repository) GetPageSummary(ctx context.Context, id uuid.UUID) (*simplepages.PageSummary, error) {
	var rows []pageSummaryRow
	if err := r.summaries(ctx).Where("p.id = ?", id.String()).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("get page summary: %w", err)
	}
	if len(rows) == 0 {
		return nil, simplepages.ErrPageNotFound
	}
	return rows[0].toSummary(), nil
}

func (r *Repository) ListPages(ctx context.Context, params simplepages.ListPagesParams) ([]*simplepages.PageSummary, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = -1
	}

	var rows []pageSummaryRow
	err := r.summaries(ctx).
		Order("p.created_at DESC, p.id DESC").
		Limit(limit).
		Offset(params.Offset).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	result := make([]*simplepages.PageSummary, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toSummary())
	}
	return result, nil
}

func (r *Repository) CountPages(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&PageRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// Wrapper operations

func (r *Repository) GetOrCreateWrapper(ctx context.Context, ref simplepages.ContentRef) (*simplepages.Wrapper, error) {
	db := r.db.WithContext(ctx)

	record := WrapperRecord{
		ID:        uuid.NewString(),
		Kind:      string(ref.Kind),
		ContentID: ref.ID.String(),
		CreatedAt: time.Now().UTC(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "content_id"}},
		DoNothing: true,
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("create wrapper: %w", err)
	}

	var stored WrapperRecord
	err = db.Where("kind = ? AND content_id = ?", string(ref.Kind), ref.ID.String()).First(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("get wrapper: %w", err)
	}
	return stored.toWrapper(), nil
}

func (r *Repository) GetWrapper(ctx context.Context, id uuid.UUID) (*simplepages.Wrapper, error) {
	var record WrapperRecord
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, simplepages.ErrWrapperNotFound
		}
		return nil, fmt.Errorf("get wrapper: %w", err)
	}
	return record.toWrapper(), nil
}

func (r *Repository) DeleteWrapper(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id.String()).Delete(&WrapperRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete wrapper: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return simplepages.ErrWrapperNotFound
		}
		if err := tx.Where("wrapper_id = ?", id.String()).Delete(&PlacementRecord{}).Error; err != nil {
			return fmt.Errorf("delete wrapper placements: %w", err)
		}
		return nil
	})
}

// Placement operations

func (r *Repository) AppendPlacement(ctx context.Context, placement *simplepages.Placement) error {
	pageID := placement.PageID.String()
	wrapperID := placement.WrapperID.String()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&PageRecord{}).Where("id = ?", pageID).Count(&n).Error; err != nil {
			return fmt.Errorf("check page: %w", err)
		}
		if n == 0 {
			return simplepages.ErrPageNotFound
		}
		if err := tx.Model(&WrapperRecord{}).Where("id = ?", wrapperID).Count(&n).Error; err != nil {
			return fmt.Errorf("check wrapper: %w", err)
		}
		if n == 0 {
			return simplepages.ErrWrapperNotFound
		}
		if err := tx.Model(&PlacementRecord{}).
			Where("page_id = ? AND wrapper_id = ?", pageID, wrapperID).
			Count(&n).Error; err != nil {
			return fmt.Errorf("check placement: %w", err)
		}
		if n > 0 {
			return simplepages.ErrDuplicatePlacement
		}

		order := placement.Order
		if order == 0 {
			var maxOrder int
			if err := tx.Model(&PlacementRecord{}).
				Where("page_id = ?", pageID).
				Select("COALESCE(MAX(sort_order), 0)").
				Scan(&maxOrder).Error; err != nil {
				return fmt.Errorf("next order: %w", err)
			}
			order = maxOrder + 1
		}

		// MAX(seq)+1 is only race-free while transactions are serialized,
		// which the single open connection set up by config.Build guarantees
		// for SQLite. idx_placements_seq turns a violation of that into an
		// error rather than a silent tie.
		var seq int64
		if err := tx.Model(&PlacementRecord{}).
			Select("COALESCE(MAX(seq), 0) + 1").
			Scan(&seq).Error; err != nil {
			return fmt.Errorf("next seq: %w", err)
		}

		record := PlacementRecord{
			ID:        placement.ID.String(),
			PageID:    pageID,
			WrapperID: wrapperID,
			SortOrder: order,
			Alias:     placement.Alias,
			Seq:       seq,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			if strings.Contains(err.Error(), "placements.seq") || strings.Contains(err.Error(), "idx_placements_seq") {
				return fmt.Errorf("placement sequence conflict: %w", err)
			}
			if isUniqueViolation(err) {
				return simplepages.ErrDuplicatePlacement
			}
			return fmt.Errorf("create placement: %w", err)
		}

		placement.Order = record.SortOrder
		placement.Seq = record.Seq
		placement.CreatedAt = record.CreatedAt
		return nil
	})
}

func (r *Repository) GetPlacement(ctx context.Context, id uuid.UUID) (*simplepages.Placement, error) {
	var record PlacementRecord
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, simplepages.ErrPlacementNotFound
		}
		return nil, fmt.Errorf("get placement: %w", err)
	}
	placement := record.toPlacement()
	return &placement, nil
}

func (r *Repository) ListPlacements(ctx context.Context, pageID uuid.UUID) ([]*simplepages.OrderedPlacement, error) {
	db := r.db.WithContext(ctx)

	var records []PlacementRecord
	err := db.Where("page_id = ?", pageID.String()).
		Order("sort_order ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	if len(records) == 0 {
		return []*simplepages.OrderedPlacement{}, nil
	}

	wrapperIDs := make([]string, 0, len(records))
	for _, record := range records {
		wrapperIDs = append(wrapperIDs, record.WrapperID)
	}
	var wrappers []WrapperRecord
	if err := db.Where("id IN ?", wrapperIDs).Find(&wrappers).Error; err != nil {
		return nil, fmt.Errorf("load wrappers: %w", err)
	}
	byID := make(map[string]WrapperRecord, len(wrappers))
	for _, w := range wrappers {
		byID[w.ID] = w
	}

	result := make([]*simplepages.OrderedPlacement, 0, len(records))
	for _, record := range records {
		ordered := &simplepages.OrderedPlacement{Placement: record.toPlacement()}
		if w, ok := byID[record.WrapperID]; ok {
			ordered.Wrapper = w.toWrapper()
		}
		result = append(result, ordered)
	}
	return result, nil
}

func (r *Repository) updatePlacement(ctx context.Context, id uuid.UUID, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&PlacementRecord{}).
		Where("id = ?", id.String()).
		UpdateColumn(column, value)
	if res.Error != nil {
		return fmt.Errorf("update placement %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return simplepages.ErrPlacementNotFound
	}
	return nil
}

func (r *Repository) ReorderPlacement(ctx context.Context, id uuid.UUID, order int) error {
	return r.updatePlacement(ctx, id, "sort_order", order)
}

func (r *Repository) SetPlacementAlias(ctx context.Context, id uuid.UUID, alias string) error {
	return r.updatePlacement(ctx, id, "alias", alias)
}

func (r *Repository) DeletePlacement(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&PlacementRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete placement: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return simplepages.ErrPlacementNotFound
	}
	return nil
}
