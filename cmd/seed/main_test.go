package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/config"
)

func TestSeed(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	stack, err := cfg.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	defer stack.Close()

	require.NoError(t, seed(context.Background(), stack.Service, 2))

	list, err := stack.Service.ListPages(context.Background(), simplepages.ListPagesRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Count)

	detail, err := stack.Service.GetPageDetail(context.Background(), list.Results[0].ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 3)
	assert.Equal(t, simplepages.KindVideo, detail.Items[0].Type)
	assert.Equal(t, simplepages.KindText, detail.Items[1].Type)
	assert.Equal(t, simplepages.KindAudio, detail.Items[2].Type)
}
