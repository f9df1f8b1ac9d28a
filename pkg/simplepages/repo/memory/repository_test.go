package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/memory"
	"github.com/tendant/simple-pages/pkg/simplepages/repotest"
)

func TestMemoryRepository_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repotest.Backend {
		return repotest.Backend{
			Repository: memory.New(),
			Stores:     memory.NewKindStores(),
		}
	})
}

func TestMemoryKindStore_RejectsOtherKinds(t *testing.T) {
	store := memory.NewKindStore(simplepages.KindVideo)
	text := &simplepages.Text{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "T", CreatedAt: time.Now()},
	}
	err := store.Create(context.Background(), text)
	assert.ErrorIs(t, err, simplepages.ErrUnknownKind)
}

func TestMemoryKindStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKindStore(simplepages.KindText)
	text := &simplepages.Text{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "Original", CreatedAt: time.Now()},
		Body:        "body",
	}
	require.NoError(t, store.Create(ctx, text))

	text.Title = "Mutated"
	found, err := store.BulkFetch(ctx, []uuid.UUID{text.ID})
	require.NoError(t, err)
	found[text.ID].Base().Counter = 99

	again, err := store.BulkFetch(ctx, []uuid.UUID{text.ID})
	require.NoError(t, err)
	assert.Equal(t, "Original", again[text.ID].Base().Title)
	assert.Equal(t, int64(0), again[text.ID].Base().Counter)
}
