package gormstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/gormstore"
	"github.com/tendant/simple-pages/pkg/simplepages/repotest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a file-backed SQLite DB with the tables migrated. A file
// is used instead of :memory: so every pooled connection sees the same data.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gormstore.AutoMigrate(db))
	return db
}

func TestGormRepository_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repotest.Backend {
		db := newTestDB(t)
		return repotest.Backend{
			Repository: gormstore.New(db),
			Stores:     gormstore.NewKindStores(db),
		}
	})
}

func TestGormAutoMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, gormstore.AutoMigrate(db))
}

func TestGormRepository_ConcurrentAppendsGetDistinctSeq(t *testing.T) {
	ctx := context.Background()
	repo := gormstore.New(newTestDB(t))

	const n = 12
	placements := make([]*simplepages.Placement, n)
	for i := range placements {
		page := &simplepages.Page{ID: uuid.New(), Title: "Page", CreatedAt: time.Now().UTC()}
		require.NoError(t, repo.CreatePage(ctx, page))
		wrapper, err := repo.GetOrCreateWrapper(ctx, simplepages.ContentRef{Kind: simplepages.KindText, ID: uuid.New()})
		require.NoError(t, err)
		placements[i] = &simplepages.Placement{ID: uuid.New(), PageID: page.ID, WrapperID: wrapper.ID}
	}

	var wg sync.WaitGroup
	for _, p := range placements {
		wg.Add(1)
		go func(p *simplepages.Placement) {
			defer wg.Done()
			assert.NoError(t, repo.AppendPlacement(ctx, p))
		}(p)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, p := range placements {
		assert.False(t, seen[p.Seq], "seq %d assigned twice", p.Seq)
		seen[p.Seq] = true
	}
	assert.Len(t, seen, n)
}
