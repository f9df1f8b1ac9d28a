package simplepages

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the discriminant tag of a content variant. It is also the "type"
// value rendered in page payloads.
type Kind string

const (
	KindVideo Kind = "Video"
	KindAudio Kind = "Audio"
	KindText  Kind = "Text"
)

// ContentRef identifies a content record across kinds.
type ContentRef struct {
	Kind Kind      `json:"type"`
	ID   uuid.UUID `json:"id"`
}

func (r ContentRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// ContentBase holds the fields every kind shares.
type ContentBase struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Counter   int64     `json:"counter"`
	CreatedAt time.Time `json:"created_at"`
}

// Base returns the shared fields of a record.
func (b *ContentBase) Base() *ContentBase {
	return b
}

func (b *ContentBase) validate() error {
	if b.ID == uuid.Nil {
		return fmt.Errorf("%w: id is required", ErrInvalidContent)
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidContent)
	}
	if len(b.Title) > 255 {
		return fmt.Errorf("%w: title exceeds 255 characters", ErrInvalidContent)
	}
	if b.Counter < 0 {
		return fmt.Errorf("%w: counter must be non-negative", ErrInvalidContent)
	}
	return nil
}

// Record is a concrete content record of some kind.
type Record interface {
	Kind() Kind
	Base() *ContentBase
	// PayloadFields returns the kind-specific fields rendered next to the
	// shared ones in a page payload.
	PayloadFields() map[string]any
	Validate() error
	Clone() Record
}

// RefOf returns the ContentRef of a record.
func RefOf(r Record) ContentRef {
	return ContentRef{Kind: r.Kind(), ID: r.Base().ID}
}

// Video is a video content record
type Video struct {
	ContentBase
	VideoURL     string  `json:"video_url"`
	SubtitlesURL *string `json:"subtitles_url"`
}

func (v *Video) Kind() Kind { return KindVideo }

func (v *Video) PayloadFields() map[string]any {
	return map[string]any{
		"video_url":     v.VideoURL,
		"subtitles_url": v.SubtitlesURL,
	}
}

func (v *Video) Validate() error {
	if err := v.ContentBase.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(v.VideoURL) == "" {
		return fmt.Errorf("%w: video_url is required", ErrInvalidContent)
	}
	return nil
}

func (v *Video) Clone() Record {
	c := *v
	if v.SubtitlesURL != nil {
		s := *v.SubtitlesURL
		c.SubtitlesURL = &s
	}
	return &c
}

// Audio is an audio content record
type Audio struct {
	ContentBase
	Transcript string `json:"transcript"`
}

func (a *Audio) Kind() Kind { return KindAudio }

func (a *Audio) PayloadFields() map[string]any {
	return map[string]any{"transcript": a.Transcript}
}

func (a *Audio) Validate() error { return a.ContentBase.validate() }

func (a *Audio) Clone() Record {
	c := *a
	return &c
}

// Text is a text content record
type Text struct {
	ContentBase
	Body string `json:"body"`
}

func (t *Text) Kind() Kind { return KindText }

func (t *Text) PayloadFields() map[string]any {
	return map[string]any{"body": t.Body}
}

func (t *Text) Validate() error { return t.ContentBase.validate() }

func (t *Text) Clone() Record {
	c := *t
	return &c
}

// Wrapper is the uniform handle placements use to reference a record of any
// kind. At most one wrapper exists per (kind, content_id).
type Wrapper struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	ContentID uuid.UUID `json:"content_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the (kind, id) pair the wrapper stands for.
func (w *Wrapper) Ref() ContentRef {
	return ContentRef{Kind: w.Kind, ID: w.ContentID}
}

// Page is an ordered collection of placements
type Page struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// PageSummary is a page with its placement count, used by list views.
type PageSummary struct {
	Page
	PlacementCount int64 `json:"placement_count"`
}

// Placement binds a wrapper to a page at a given order. Seq is assigned by
// the store on insert and breaks ties between equal orders.
type Placement struct {
	ID        uuid.UUID `json:"id"`
	PageID    uuid.UUID `json:"page_id"`
	WrapperID uuid.UUID `json:"wrapper_id"`
	Order     int       `json:"order"`
	Alias     string    `json:"alias,omitempty"`
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderedPlacement is a placement joined with its wrapper. Wrapper is nil
// when the wrapper row no longer exists.
type OrderedPlacement struct {
	Placement
	Wrapper *Wrapper `json:"wrapper,omitempty"`
}

// ContentPayload is one rendered item of a page. Fields carries the
// kind-specific values and is flattened into the JSON object.
type ContentPayload struct {
	ID      uuid.UUID
	Type    Kind
	Title   string
	Counter int64
	Order   int
	Fields  map[string]any
}

// NewContentPayload renders a record placed at the given order.
func NewContentPayload(r Record, order int) ContentPayload {
	base := r.Base()
	return ContentPayload{
		ID:      base.ID,
		Type:    r.Kind(),
		Title:   base.Title,
		Counter: base.Counter,
		Order:   order,
		Fields:  r.PayloadFields(),
	}
}

func (p ContentPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+5)
	for k, v := range p.Fields {
		out[k] = v
	}
	out["id"] = p.ID
	out["type"] = p.Type
	out["title"] = p.Title
	out["counter"] = p.Counter
	out["order"] = p.Order
	return json.Marshal(out)
}

// PageDetail is a page with its resolved content in placement order.
type PageDetail struct {
	Page
	Items []ContentPayload `json:"contents"`
}

// PageList is one page of the pages listing.
type PageList struct {
	Count    int64          `json:"count"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Results  []*PageSummary `json:"results"`
}

// HasNext reports whether a later page exists.
func (l *PageList) HasNext() bool {
	return int64(l.Page*l.PageSize) < l.Count
}

// HasPrevious reports whether an earlier page exists.
func (l *PageList) HasPrevious() bool {
	return l.Page > 1
}

// CounterSnapshot holds counter values computed by the store, keyed by ref.
type CounterSnapshot map[ContentRef]int64
