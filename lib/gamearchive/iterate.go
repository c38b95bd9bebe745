package gamearchive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (a Archive) decodeWorkers() int {
	if a.DecodeWorkers > 0 {
		return a.DecodeWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// gameFiles lists every archived game file of a user, sorted by
// filename descending. Padded filenames make that reverse-chronological
// by game id.
func (a Archive) gameFiles(username string) ([]string, error) {
	entries, err := os.ReadDir(a.userDir(username))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		shardDir := filepath.Join(a.userDir(username), shard.Name())
		shardEntries, err := os.ReadDir(shardDir)
		if err != nil {
			return nil, err
		}
		for _, entry := range shardEntries {
			if entry.IsDir() {
				continue
			}
			files = append(files, filepath.Join(shardDir, entry.Name()))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) > filepath.Base(files[j])
	})
	return files, nil
}

// Iterate feeds every archived record of the user to visit, newest
// game id first. Files decode concurrently, the filename order is
// re-imposed before emission.
func (a Archive) Iterate(ctx context.Context, username string, visit func(record games.Record) error) error {
	ctx, span := tracer.Start(ctx, "archive:Iterate")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	files, err := a.gameFiles(username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scan archive")
		return err
	}
	span.SetAttributes(attribute.Int("records", len(files)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errlist []error
		records = make([]games.Record, len(files))
		sem     = make(chan struct{}, a.decodeWorkers())
	)
	for i, path := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			record, err := a.readRecord(path)
			if err != nil {
				mu.Lock()
				errlist = append(errlist, err)
				mu.Unlock()
				return
			}
			records[i] = record
		}(i, path)
	}
	wg.Wait()

	if len(errlist) > 0 {
		span.SetStatus(codes.Error, "some records failed to decode")
		return errors.Join(errlist...)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(record); err != nil {
			return err
		}
	}
	return nil
}
