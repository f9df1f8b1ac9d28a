// Command seed fills the configured store with demo pages of mixed content.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/config"
)

func main() {
	pages := flag.Int("pages", 3, "number of demo pages to create")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	stack, err := cfg.Build(ctx, slog.Default(), nil)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer stack.Close()

	if err := seed(ctx, stack.Service, *pages); err != nil {
		slog.Error("Seeding failed", "err", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, svc simplepages.Service, count int) error {
	for i := 1; i <= count; i++ {
		page, err := svc.CreatePage(ctx, simplepages.CreatePageRequest{Title: fmt.Sprintf("Demo page %d", i)})
		if err != nil {
			return err
		}

		subtitles := fmt.Sprintf("https://cdn.example.com/videos/%d.vtt", i)
		records := []simplepages.Record{
			&simplepages.Video{
				ContentBase:  simplepages.ContentBase{Title: fmt.Sprintf("Intro video %d", i)},
				VideoURL:     fmt.Sprintf("https://cdn.example.com/videos/%d.mp4", i),
				SubtitlesURL: &subtitles,
			},
			&simplepages.Text{
				ContentBase: simplepages.ContentBase{Title: fmt.Sprintf("Article %d", i)},
				Body:        "Lorem ipsum dolor sit amet.",
			},
			&simplepages.Audio{
				ContentBase: simplepages.ContentBase{Title: fmt.Sprintf("Podcast %d", i)},
				Transcript:  "Welcome to the show.",
			},
		}

		for _, record := range records {
			if err := svc.CreateContent(ctx, record); err != nil {
				return err
			}
			if _, err := svc.PlaceContent(ctx, simplepages.PlaceContentRequest{
				PageID:  page.ID,
				Content: simplepages.RefOf(record),
			}); err != nil {
				return err
			}
		}
		slog.Info("Seeded page", "page_id", page.ID, "title", page.Title, "contents", len(records))
	}
	return nil
}
