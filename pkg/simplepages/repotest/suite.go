// Package repotest holds the conformance tests every repository backend runs.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// Backend is a repository plus the kind stores that share its storage.
type Backend struct {
	Repository simplepages.Repository
	Stores     []simplepages.KindStore
}

// Store returns the backend's store for kind.
func (b Backend) Store(t *testing.T, kind simplepages.Kind) simplepages.KindStore {
	t.Helper()
	for _, store := range b.Stores {
		if store.Kind() == kind {
			return store
		}
	}
	t.Fatalf("backend has no store for kind %s", kind)
	return nil
}

// Factory creates an empty backend for one subtest.
type Factory func(t *testing.T) Backend

// Run executes the conformance suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("Pages", func(t *testing.T) { testPages(t, newBackend(t)) })
	t.Run("ListPages", func(t *testing.T) { testListPages(t, newBackend(t)) })
	t.Run("Wrappers", func(t *testing.T) { testWrappers(t, newBackend(t)) })
	t.Run("AppendPlacement", func(t *testing.T) { testAppendPlacement(t, newBackend(t)) })
	t.Run("PlacementOrdering", func(t *testing.T) { testPlacementOrdering(t, newBackend(t)) })
	t.Run("PlacementUpdates", func(t *testing.T) { testPlacementUpdates(t, newBackend(t)) })
	t.Run("Cascades", func(t *testing.T) { testCascades(t, newBackend(t)) })
	t.Run("KindStores", func(t *testing.T) { testKindStores(t, newBackend(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newBackend(t)) })
}

func newPage(title string, createdAt time.Time) *simplepages.Page {
	return &simplepages.Page{ID: uuid.New(), Title: title, CreatedAt: createdAt.UTC().Truncate(time.Microsecond)}
}

func newVideo(title string) *simplepages.Video {
	return &simplepages.Video{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: title, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)},
		VideoURL:    "http://example.com/" + title,
	}
}

func mustPage(t *testing.T, b Backend, title string) *simplepages.Page {
	t.Helper()
	page := newPage(title, time.Now())
	require.NoError(t, b.Repository.CreatePage(context.Background(), page))
	return page
}

func mustWrapper(t *testing.T, b Backend) *simplepages.Wrapper {
	t.Helper()
	video := newVideo("clip")
	require.NoError(t, b.Store(t, simplepages.KindVideo).Create(context.Background(), video))
	wrapper, err := b.Repository.GetOrCreateWrapper(context.Background(), simplepages.RefOf(video))
	require.NoError(t, err)
	return wrapper
}

func mustAppend(t *testing.T, b Backend, pageID, wrapperID uuid.UUID, order int) *simplepages.Placement {
	t.Helper()
	placement := &simplepages.Placement{ID: uuid.New(), PageID: pageID, WrapperID: wrapperID, Order: order}
	require.NoError(t, b.Repository.AppendPlacement(context.Background(), placement))
	return placement
}

func testPages(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository

	page := newPage("Home", time.Now())
	require.NoError(t, repo.CreatePage(ctx, page))

	got, err := repo.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)
	assert.Equal(t, "Home", got.Title)
	assert.WithinDuration(t, page.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = repo.GetPage(ctx, uuid.New())
	assert.ErrorIs(t, err, simplepages.ErrPageNotFound)
	assert.ErrorIs(t, err, simplepages.ErrNotFound)

	summary, err := repo.GetPageSummary(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.PlacementCount)

	require.NoError(t, repo.DeletePage(ctx, page.ID))
	_, err = repo.GetPage(ctx, page.ID)
	assert.ErrorIs(t, err, simplepages.ErrPageNotFound)
	assert.ErrorIs(t, repo.DeletePage(ctx, page.ID), simplepages.ErrPageNotFound)
}

func testListPages(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository

	base := time.Now().Add(-time.Hour)
	var pages []*simplepages.Page
	for i := 0; i < 15; i++ {
		page := newPage("page", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.CreatePage(ctx, page))
		pages = append(pages, page)
	}

	newest := pages[14]
	wrapper := mustWrapper(t, b)
	mustAppend(t, b, newest.ID, wrapper.ID, 0)
	mustAppend(t, b, newest.ID, mustWrapper(t, b).ID, 0)

	count, err := repo.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), count)

	first, err := repo.ListPages(ctx, simplepages.ListPagesParams{Limit: 10, Offset: 0})
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, newest.ID, first[0].ID)
	assert.Equal(t, int64(2), first[0].PlacementCount)
	assert.Equal(t, int64(0), first[1].PlacementCount)
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].CreatedAt.After(first[i-1].CreatedAt), "pages must be newest first")
	}

	second, err := repo.ListPages(ctx, simplepages.ListPagesParams{Limit: 10, Offset: 10})
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.Equal(t, pages[0].ID, second[4].ID)

	summary, err := repo.GetPageSummary(ctx, newest.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.PlacementCount)
}

func testWrappers(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository

	ref := simplepages.ContentRef{Kind: simplepages.KindAudio, ID: uuid.New()}
	first, err := repo.GetOrCreateWrapper(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, first.Ref())

	second, err := repo.GetOrCreateWrapper(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one wrapper per (kind, id)")

	other, err := repo.GetOrCreateWrapper(ctx, simplepages.ContentRef{Kind: simplepages.KindText, ID: ref.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "ids are scoped to their kind")

	got, err := repo.GetWrapper(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Ref())

	_, err = repo.GetWrapper(ctx, uuid.New())
	assert.ErrorIs(t, err, simplepages.ErrWrapperNotFound)

	// Concurrent creation still yields a single wrapper
	concurrentRef := simplepages.ContentRef{Kind: simplepages.KindVideo, ID: uuid.New()}
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := repo.GetOrCreateWrapper(ctx, concurrentRef)
			errs[i] = err
			if err == nil {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func testAppendPlacement(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository
	page := mustPage(t, b, "Append")

	first := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 0)
	assert.Equal(t, 1, first.Order, "first placement gets order 1")
	assert.NotZero(t, first.Seq)

	explicit := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 7)
	assert.Equal(t, 7, explicit.Order)

	next := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 0)
	assert.Equal(t, 8, next.Order, "append uses max(order)+1")
	assert.Greater(t, next.Seq, explicit.Seq)

	dup := &simplepages.Placement{ID: uuid.New(), PageID: page.ID, WrapperID: first.WrapperID}
	assert.ErrorIs(t, repo.AppendPlacement(ctx, dup), simplepages.ErrDuplicatePlacement)

	missingPage := &simplepages.Placement{ID: uuid.New(), PageID: uuid.New(), WrapperID: first.WrapperID}
	assert.ErrorIs(t, repo.AppendPlacement(ctx, missingPage), simplepages.ErrPageNotFound)

	missingWrapper := &simplepages.Placement{ID: uuid.New(), PageID: page.ID, WrapperID: uuid.New()}
	assert.ErrorIs(t, repo.AppendPlacement(ctx, missingWrapper), simplepages.ErrWrapperNotFound)

	// The same wrapper may be placed on another page
	otherPage := mustPage(t, b, "Other")
	other := mustAppend(t, b, otherPage.ID, first.WrapperID, 0)
	assert.Equal(t, 1, other.Order)

	got, err := repo.GetPlacement(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.WrapperID, got.WrapperID)
	assert.Equal(t, 1, got.Order)
}

func testPlacementOrdering(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository
	page := mustPage(t, b, "Ordering")

	c := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 3)
	a := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 1)
	tieFirst := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 2)
	tieSecond := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 2)

	placements, err := repo.ListPlacements(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, placements, 4)

	var got []uuid.UUID
	for _, p := range placements {
		got = append(got, p.ID)
		require.NotNil(t, p.Wrapper)
		assert.Equal(t, p.WrapperID, p.Wrapper.ID)
		assert.Equal(t, simplepages.KindVideo, p.Wrapper.Kind)
	}
	assert.Equal(t, []uuid.UUID{a.ID, tieFirst.ID, tieSecond.ID, c.ID}, got)

	empty, err := repo.ListPlacements(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testPlacementUpdates(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository
	page := mustPage(t, b, "Updates")

	first := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 0)
	second := mustAppend(t, b, page.ID, mustWrapper(t, b).ID, 0)

	require.NoError(t, repo.ReorderPlacement(ctx, first.ID, 10))
	placements, err := repo.ListPlacements(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, placements, 2)
	assert.Equal(t, second.ID, placements[0].ID)
	assert.Equal(t, first.ID, placements[1].ID)
	assert.Equal(t, 10, placements[1].Order)

	require.NoError(t, repo.SetPlacementAlias(ctx, second.ID, "intro"))
	got, err := repo.GetPlacement(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "intro", got.Alias)

	require.NoError(t, repo.DeletePlacement(ctx, first.ID))
	_, err = repo.GetPlacement(ctx, first.ID)
	assert.ErrorIs(t, err, simplepages.ErrPlacementNotFound)

	// Removing a placement leaves the wrapper in place
	_, err = repo.GetWrapper(ctx, first.WrapperID)
	assert.NoError(t, err)

	missing := uuid.New()
	assert.ErrorIs(t, repo.ReorderPlacement(ctx, missing, 1), simplepages.ErrPlacementNotFound)
	assert.ErrorIs(t, repo.SetPlacementAlias(ctx, missing, "x"), simplepages.ErrPlacementNotFound)
	assert.ErrorIs(t, repo.DeletePlacement(ctx, missing), simplepages.ErrPlacementNotFound)
}

func testCascades(t *testing.T, b Backend) {
	ctx := context.Background()
	repo := b.Repository

	page := mustPage(t, b, "Cascade")
	shared := mustWrapper(t, b)
	onPage := mustAppend(t, b, page.ID, shared.ID, 0)

	other := mustPage(t, b, "Other")
	onOther := mustAppend(t, b, other.ID, shared.ID, 0)
	kept := mustAppend(t, b, other.ID, mustWrapper(t, b).ID, 0)

	require.NoError(t, repo.DeletePage(ctx, page.ID))
	_, err := repo.GetPlacement(ctx, onPage.ID)
	assert.ErrorIs(t, err, simplepages.ErrPlacementNotFound)
	_, err = repo.GetWrapper(ctx, shared.ID)
	assert.NoError(t, err, "deleting a page keeps wrappers")

	require.NoError(t, repo.DeleteWrapper(ctx, shared.ID))
	_, err = repo.GetPlacement(ctx, onOther.ID)
	assert.ErrorIs(t, err, simplepages.ErrPlacementNotFound)
	_, err = repo.GetPlacement(ctx, kept.ID)
	assert.NoError(t, err)

	summary, err := repo.GetPageSummary(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.PlacementCount)

	assert.ErrorIs(t, repo.DeleteWrapper(ctx, shared.ID), simplepages.ErrWrapperNotFound)
}

func testKindStores(t *testing.T, b Backend) {
	ctx := context.Background()

	videos := b.Store(t, simplepages.KindVideo)
	subtitles := "http://example.com/subs.vtt"
	video := newVideo("V1")
	video.SubtitlesURL = &subtitles
	require.NoError(t, videos.Create(ctx, video))

	missing := uuid.New()
	found, err := videos.BulkFetch(ctx, []uuid.UUID{video.ID, missing})
	require.NoError(t, err)
	require.Len(t, found, 1)
	got, ok := found[video.ID].(*simplepages.Video)
	require.True(t, ok)
	assert.Equal(t, "V1", got.Title)
	assert.Equal(t, video.VideoURL, got.VideoURL)
	require.NotNil(t, got.SubtitlesURL)
	assert.Equal(t, subtitles, *got.SubtitlesURL)
	assert.Equal(t, int64(0), got.Counter)

	audios := b.Store(t, simplepages.KindAudio)
	audio := &simplepages.Audio{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "A1", CreatedAt: time.Now().UTC()},
		Transcript:  "hello",
	}
	require.NoError(t, audios.Create(ctx, audio))

	texts := b.Store(t, simplepages.KindText)
	text := &simplepages.Text{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "T1", CreatedAt: time.Now().UTC()},
		Body:        "lorem",
	}
	require.NoError(t, texts.Create(ctx, text))

	foundAudio, err := audios.BulkFetch(ctx, []uuid.UUID{audio.ID})
	require.NoError(t, err)
	assert.Equal(t, "hello", foundAudio[audio.ID].(*simplepages.Audio).Transcript)

	foundText, err := texts.BulkFetch(ctx, []uuid.UUID{text.ID})
	require.NoError(t, err)
	assert.Equal(t, "lorem", foundText[text.ID].(*simplepages.Text).Body)

	counters, err := videos.IncrementCounters(ctx, map[uuid.UUID]int64{video.ID: 2, missing: 1})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{video.ID: 2}, counters)

	counters, err = videos.IncrementCounters(ctx, map[uuid.UUID]int64{video.ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters[video.ID])

	require.NoError(t, videos.Delete(ctx, video.ID))
	found, err = videos.BulkFetch(ctx, []uuid.UUID{video.ID})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.ErrorIs(t, videos.Delete(ctx, video.ID), simplepages.ErrContentNotFound)
}

func testConcurrentIncrements(t *testing.T, b Backend) {
	ctx := context.Background()
	videos := b.Store(t, simplepages.KindVideo)

	video := newVideo("popular")
	require.NoError(t, videos.Create(ctx, video))

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := videos.IncrementCounters(ctx, map[uuid.UUID]int64{video.ID: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	found, err := videos.BulkFetch(ctx, []uuid.UUID{video.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(callers), found[video.ID].Base().Counter)
}
