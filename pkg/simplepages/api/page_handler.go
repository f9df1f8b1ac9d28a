package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// PageListItem is one entry of the pages listing
type PageListItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	ContentCount int64     `json:"content_count"`
	DetailURL    string    `json:"detail_url"`
}

// PageListResponse is the paginated pages listing
type PageListResponse struct {
	Count    int64          `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []PageListItem `json:"results"`
}

// PageDetailResponse is a page with its contents in placement order
type PageDetailResponse struct {
	ID        string                       `json:"id"`
	Title     string                       `json:"title"`
	CreatedAt time.Time                    `json:"created_at"`
	Contents  []simplepages.ContentPayload `json:"contents"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// PageHandler serves the read-only pages API
type PageHandler struct {
	service simplepages.Service
	logger  *slog.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(service simplepages.Service, logger *slog.Logger) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageHandler{service: service, logger: logger}
}

// Routes returns the routes for pages. Paths work with and without the
// trailing slash.
func (h *PageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPages)
	r.Get("/{id}", h.GetPage)
	r.Get("/{id}/", h.GetPage)

	return r
}

// ListPages returns one page of the pages listing, newest first
func (h *PageHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	number := 1
	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, r, http.StatusNotFound, "Invalid page.")
			return
		}
		number = n
	}
	size := 0
	if raw := query.Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}

	list, err := h.service.ListPages(r.Context(), simplepages.ListPagesRequest{Page: number, PageSize: size})
	if err != nil {
		if errors.Is(err, simplepages.ErrInvalidPage) {
			h.writeError(w, r, http.StatusNotFound, "Invalid page.")
			return
		}
		h.logger.Error("failed to list pages", "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "Internal server error.")
		return
	}

	base := requestURL(r)
	resp := PageListResponse{
		Count:   list.Count,
		Results: make([]PageListItem, 0, len(list.Results)),
	}
	if list.HasNext() {
		next := pageLink(base, list.Page+1)
		resp.Next = &next
	}
	if list.HasPrevious() {
		prev := pageLink(base, list.Page-1)
		resp.Previous = &prev
	}

	detailBase := *base
	detailBase.RawQuery = ""
	detailBase.Path = strings.TrimSuffix(detailBase.Path, "/") + "/"
	for _, summary := range list.Results {
		detail := detailBase
		detail.Path += summary.ID.String() + "/"
		resp.Results = append(resp.Results, PageListItem{
			ID:           summary.ID.String(),
			Title:        summary.Title,
			CreatedAt:    summary.CreatedAt,
			ContentCount: summary.PlacementCount,
			DetailURL:    detail.String(),
		})
	}

	render.JSON(w, r, resp)
}

// GetPage returns a page with its resolved contents. Every returned item
// counts as one view.
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "Not found.")
		return
	}

	detail, err := h.service.GetPageDetail(r.Context(), id)
	if err != nil {
		if errors.Is(err, simplepages.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "Not found.")
			return
		}
		h.logger.Error("failed to get page detail", "page_id", id, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "Internal server error.")
		return
	}

	render.JSON(w, r, PageDetailResponse{
		ID:        detail.ID.String(),
		Title:     detail.Title,
		CreatedAt: detail.CreatedAt,
		Contents:  detail.Items,
	})
}

func (h *PageHandler) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail})
}

// requestURL rebuilds the absolute URL the client used.
func requestURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := *r.URL
	u.Scheme = scheme
	u.Host = r.Host
	return &u
}

func pageLink(base *url.URL, number int) string {
	u := *base
	q := u.Query()
	if number <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
