package gormstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"gorm.io/gorm"
)

// PageRecord is the GORM model for the pages table. CreatedAt is stored as
// unix nanoseconds so listing order does not depend on how the driver
// renders timestamps as text.
type PageRecord struct {
	ID        string `gorm:"primaryKey;column:id;type:varchar(36)"`
	Title     string `gorm:"column:title;size:255;not null"`
	CreatedAt int64  `gorm:"column:created_at;index:idx_pages_created;not null;autoCreateTime:false"`
}

func (PageRecord) TableName() string { return "pages" }

func (r PageRecord) toPage() simplepages.Page {
	return simplepages.Page{
		ID:        uuid.MustParse(r.ID),
		Title:     r.Title,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// WrapperRecord is the GORM model for the content_wrappers table.
type WrapperRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Kind      string    `gorm:"column:kind;size:32;not null;uniqueIndex:idx_wrappers_ref"`
	ContentID string    `gorm:"column:content_id;type:varchar(36);not null;uniqueIndex:idx_wrappers_ref"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (WrapperRecord) TableName() string { return "content_wrappers" }

func (r WrapperRecord) toWrapper() *simplepages.Wrapper {
	return &simplepages.Wrapper{
		ID:        uuid.MustParse(r.ID),
		Kind:      simplepages.Kind(r.Kind),
		ContentID: uuid.MustParse(r.ContentID),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// PlacementRecord is the GORM model for the placements table.
type PlacementRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	PageID    string    `gorm:"column:page_id;type:varchar(36);not null;uniqueIndex:idx_placements_page_wrapper;index:idx_placements_order,priority:1"`
	WrapperID string    `gorm:"column:wrapper_id;type:varchar(36);not null;uniqueIndex:idx_placements_page_wrapper;index:idx_placements_wrapper"`
	SortOrder int       `gorm:"column:sort_order;not null;index:idx_placements_order,priority:2"`
	Alias     string    `gorm:"column:alias;size:255"`
	Seq       int64     `gorm:"column:seq;not null;index:idx_placements_order,priority:3;uniqueIndex:idx_placements_seq"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (PlacementRecord) TableName() string { return "placements" }

func (r PlacementRecord) toPlacement() simplepages.Placement {
	return simplepages.Placement{
		ID:        uuid.MustParse(r.ID),
		PageID:    uuid.MustParse(r.PageID),
		WrapperID: uuid.MustParse(r.WrapperID),
		Order:     r.SortOrder,
		Alias:     r.Alias,
		Seq:       r.Seq,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// ContentColumns are the columns every kind table shares.
type ContentColumns struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Title     string    `gorm:"column:title;size:255;not null"`
	Counter   int64     `gorm:"column:counter;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func contentColumns(b *simplepages.ContentBase) ContentColumns {
	return ContentColumns{
		ID:        b.ID.String(),
		Title:     b.Title,
		Counter:   b.Counter,
		CreatedAt: b.CreatedAt,
	}
}

func (c ContentColumns) base() simplepages.ContentBase {
	return simplepages.ContentBase{
		ID:        uuid.MustParse(c.ID),
		Title:     c.Title,
		Counter:   c.Counter,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

// VideoRecord is the GORM model for the videos table.
type VideoRecord struct {
	ContentColumns
	VideoURL     string  `gorm:"column:video_url;not null"`
	SubtitlesURL *string `gorm:"column:subtitles_url"`
}

func (VideoRecord) TableName() string { return "videos" }

// AudioRecord is the GORM model for the audios table.
type AudioRecord struct {
	ContentColumns
	Transcript string `gorm:"column:transcript;type:text"`
}

func (AudioRecord) TableName() string { return "audios" }

// TextRecord is the GORM model for the texts table.
type TextRecord struct {
	ContentColumns
	Body string `gorm:"column:body;type:text"`
}

func (TextRecord) TableName() string { return "texts" }

// AutoMigrate creates or updates every table the store uses.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&PageRecord{},
		&WrapperRecord{},
		&PlacementRecord{},
		&VideoRecord{},
		&AudioRecord{},
		&TextRecord{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate simplepages tables: %w", err)
	}
	return nil
}
