package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/memory"
)

// setupPageHandlerTest mounts a PageHandler over in-memory storage at /pages
func setupPageHandlerTest(t *testing.T) (http.Handler, simplepages.Service) {
	t.Helper()
	registry, err := simplepages.NewRegistry(memory.NewKindStores()...)
	require.NoError(t, err)

	service, err := simplepages.New(
		simplepages.WithRepository(memory.New()),
		simplepages.WithRegistry(registry),
	)
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount("/pages", NewPageHandler(service, nil).Routes())
	return router, service
}

func doGet(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestPageHandler_ListPages_Paginates(t *testing.T) {
	router, service := setupPageHandlerTest(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := service.CreatePage(ctx, simplepages.CreatePageRequest{Title: "Page"})
		require.NoError(t, err)
	}

	w := doGet(t, router, "/pages/")
	require.Equal(t, http.StatusOK, w.Code)

	var first PageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, int64(15), first.Count)
	assert.Len(t, first.Results, 10)
	require.NotNil(t, first.Next)
	assert.Equal(t, "http://example.com/pages/?page=2", *first.Next)
	assert.Nil(t, first.Previous)
	assert.Equal(t, "http://example.com/pages/"+first.Results[0].ID+"/", first.Results[0].DetailURL)

	w = doGet(t, router, "/pages/?page=2")
	require.Equal(t, http.StatusOK, w.Code)

	var second PageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Len(t, second.Results, 5)
	assert.Nil(t, second.Next)
	require.NotNil(t, second.Previous)
	assert.Equal(t, "http://example.com/pages/", *second.Previous)

	seen := make(map[string]bool)
	for _, item := range append(first.Results, second.Results...) {
		assert.False(t, seen[item.ID], "page listed twice")
		seen[item.ID] = true
	}
}

func TestPageHandler_ListPages_PageSize(t *testing.T) {
	router, service := setupPageHandlerTest(t)
	for i := 0; i < 3; i++ {
		_, err := service.CreatePage(context.Background(), simplepages.CreatePageRequest{Title: "Page"})
		require.NoError(t, err)
	}

	w := doGet(t, router, "/pages/?page_size=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)
	require.NotNil(t, resp.Next)
	assert.Equal(t, "http://example.com/pages/?page=2&page_size=2", *resp.Next)
}

func TestPageHandler_ListPages_InvalidPage(t *testing.T) {
	router, service := setupPageHandlerTest(t)
	_, err := service.CreatePage(context.Background(), simplepages.CreatePageRequest{Title: "Only"})
	require.NoError(t, err)

	for _, target := range []string{"/pages/?page=2", "/pages/?page=abc", "/pages/?page=0"} {
		w := doGet(t, router, target)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.JSONEq(t, `{"detail":"Invalid page."}`, w.Body.String(), target)
	}
}

func TestPageHandler_ListPages_Empty(t *testing.T) {
	router, _ := setupPageHandlerTest(t)

	w := doGet(t, router, "/pages/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0,"next":null,"previous":null,"results":[]}`, w.Body.String())
}

func TestPageHandler_GetPage_RendersContents(t *testing.T) {
	router, service := setupPageHandlerTest(t)
	ctx := context.Background()

	page, err := service.CreatePage(ctx, simplepages.CreatePageRequest{Title: "Home"})
	require.NoError(t, err)

	video := &simplepages.Video{ContentBase: simplepages.ContentBase{Title: "V1"}, VideoURL: "http://x"}
	text := &simplepages.Text{ContentBase: simplepages.ContentBase{Title: "T1"}, Body: "hello"}
	require.NoError(t, service.CreateContent(ctx, video))
	require.NoError(t, service.CreateContent(ctx, text))

	_, err = service.PlaceContent(ctx, simplepages.PlaceContentRequest{PageID: page.ID, Content: simplepages.RefOf(text), Order: 2})
	require.NoError(t, err)
	_, err = service.PlaceContent(ctx, simplepages.PlaceContentRequest{PageID: page.ID, Content: simplepages.RefOf(video), Order: 1})
	require.NoError(t, err)

	w := doGet(t, router, "/pages/"+page.ID.String()+"/")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID       string           `json:"id"`
		Title    string           `json:"title"`
		Contents []map[string]any `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, page.ID.String(), resp.ID)
	assert.Equal(t, "Home", resp.Title)
	require.Len(t, resp.Contents, 2)

	assert.Equal(t, "Video", resp.Contents[0]["type"])
	assert.Equal(t, "V1", resp.Contents[0]["title"])
	assert.Equal(t, "http://x", resp.Contents[0]["video_url"])
	assert.Nil(t, resp.Contents[0]["subtitles_url"])
	assert.Equal(t, float64(1), resp.Contents[0]["counter"])
	assert.Equal(t, float64(1), resp.Contents[0]["order"])

	assert.Equal(t, "Text", resp.Contents[1]["type"])
	assert.Equal(t, "hello", resp.Contents[1]["body"])
	assert.Equal(t, float64(2), resp.Contents[1]["order"])

	// Without the trailing slash, and a second view
	w = doGet(t, router, "/pages/"+page.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp.Contents[0]["counter"])
}

func TestPageHandler_GetPage_NotFound(t *testing.T) {
	router, _ := setupPageHandlerTest(t)

	for _, target := range []string{"/pages/" + uuid.NewString() + "/", "/pages/not-a-uuid/"} {
		w := doGet(t, router, target)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.JSONEq(t, `{"detail":"Not found."}`, w.Body.String(), target)
	}
}
