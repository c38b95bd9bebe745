package gamearchive

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// GameSource is the slice of the game service the archive consumes.
type GameSource interface {
	ListUserGames(ctx context.Context, username string, visit func(page games.ListingPage) (stop bool, err error)) error
	Info(ctx context.Context, id string) (games.Record, error)
}

type SyncStats struct {
	Fetched int
	Skipped int
	Pages   int
}

func (a Archive) fetchWorkers() int {
	if a.FetchWorkers > 0 {
		return a.FetchWorkers
	}
	// detail fetches are I/O bound, oversubscribe the cores
	return runtime.GOMAXPROCS(0) * 4
}

// Sync incrementally extends the user's archive. The listing crawl
// stops once the cursor's last seen id shows up on a page: listings
// run newest first, so everything past that point is already cached.
// Missing details are fetched concurrently and written one file per
// game id, which makes a partially completed run safe to repeat.
func (a Archive) Sync(ctx context.Context, source GameSource, username string) (SyncStats, error) {
	ctx, span := tracer.Start(ctx, "archive:Sync")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	cursor, err := a.Cursor(username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load cursor")
		return SyncStats{}, err
	}

	var (
		stats    SyncStats
		observed []string
		next     = cursor
	)
	err = source.ListUserGames(ctx, username, func(page games.ListingPage) (bool, error) {
		stats.Pages = page.Index
		next.LastPageCount = page.Total
		if page.Index == 1 {
			if page.UserId != "" {
				next.UserId = page.UserId
			}
			if len(page.GameIds) > 0 {
				next.LastGameId = page.GameIds[0]
			}
		}

		for _, id := range page.GameIds {
			if cursor.LastGameId != "" && id == cursor.LastGameId {
				return true, nil
			}
			observed = append(observed, id)
		}
		return false, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to crawl listing")
		return stats, err
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errlist []error
		sem     = make(chan struct{}, a.fetchWorkers())
	)
	for _, id := range observed {
		if a.Has(username, id) {
			stats.Skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			record, err := source.Info(ctx, id)
			if err == nil {
				err = a.writeRecord(username, record)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(ctx, "failed to archive game", "game_id", id, "err", err)
				errlist = append(errlist, err)
				return
			}
			stats.Fetched++
		}(id)
	}
	wg.Wait()

	if len(errlist) > 0 {
		// partial progress is already durable, the next sync resumes
		// from whatever landed on disk
		span.SetStatus(codes.Error, "some games failed to archive")
		return stats, errors.Join(errlist...)
	}

	err = a.saveCursor(username, next)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save cursor")
		return stats, err
	}

	span.SetAttributes(
		attribute.Int("fetched", stats.Fetched),
		attribute.Int("skipped", stats.Skipped),
		attribute.Int("pages", stats.Pages),
	)
	slog.InfoContext(
		ctx, "archive synced",
		"username", username,
		"fetched", stats.Fetched,
		"skipped", stats.Skipped,
		"pages", stats.Pages,
	)
	return stats, nil
}
