package gamearchive

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"
	"github.com/aropan/raic-cli/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeGameSource serves listing pages and detail records from memory
// and counts detail fetches.
type fakeGameSource struct {
	// newest first, split into pages of two
	gameIds []string
	userId  string

	mu        sync.Mutex
	infoCalls []string
	infoErrs  map[string]error
}

const fakePageSize = 2

func (s *fakeGameSource) ListUserGames(ctx context.Context, username string, visit func(page games.ListingPage) (bool, error)) error {
	total := (len(s.gameIds) + fakePageSize - 1) / fakePageSize
	if total == 0 {
		total = 1
	}
	for index := 1; index <= total; index++ {
		lo := (index - 1) * fakePageSize
		hi := lo + fakePageSize
		if hi > len(s.gameIds) {
			hi = len(s.gameIds)
		}
		stop, err := visit(games.ListingPage{
			Index:   index,
			Total:   total,
			UserId:  s.userId,
			GameIds: s.gameIds[lo:hi],
		})
		if err != nil || stop {
			return err
		}
	}
	return nil
}

func (s *fakeGameSource) Info(ctx context.Context, id string) (games.Record, error) {
	s.mu.Lock()
	s.infoCalls = append(s.infoCalls, id)
	err := s.infoErrs[id]
	s.mu.Unlock()
	if err != nil {
		return games.Record{}, err
	}
	return games.Record{Id: id, CreationTime: 1_700_000_000}, nil
}

func TestPadId(t *testing.T) {
	require.Equal(t, "00000123", PadId("123"))
	require.Equal(t, "12345678", PadId("12345678"))
	require.Equal(t, "123456789", PadId("123456789"))
}

func TestGamePathSharding(t *testing.T) {
	archive := Archive{Root: "/tmp/archive"}
	require.Equal(
		t,
		filepath.Join("/tmp/archive", "alice", "0000", "00000123"),
		archive.gamePath("alice", "123"),
	)
}

func TestSyncFromScratch(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:gamearchive")
	defer cleanup()

	archive := Archive{Root: t.TempDir()}
	source := &fakeGameSource{
		gameIds: []string{"105", "104", "103", "102", "101"},
		userId:  "7788",
	}

	stats, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)
	require.Equal(t, SyncStats{Fetched: 5, Skipped: 0, Pages: 3}, stats)

	for _, id := range source.gameIds {
		require.True(t, archive.Has("alice", id))
	}

	cursor, err := archive.Cursor("alice")
	require.NoError(t, err)
	require.Equal(t, Cursor{LastGameId: "105", LastPageCount: 3, UserId: "7788"}, cursor)
}

func TestSyncStopsAtCursor(t *testing.T) {
	archive := Archive{Root: t.TempDir()}
	source := &fakeGameSource{gameIds: []string{"103", "102", "101"}}

	_, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)

	// two new games land on top of the listing
	source.gameIds = []string{"105", "104", "103", "102", "101"}
	source.infoCalls = nil

	stats, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, stats.Fetched)
	// the crawl ends on the page carrying the cursor id, older games
	// are never listed again let alone fetched
	require.ElementsMatch(t, []string{"105", "104"}, source.infoCalls)

	cursor, err := archive.Cursor("alice")
	require.NoError(t, err)
	require.Equal(t, "105", cursor.LastGameId)
}

func TestSyncIsIdempotent(t *testing.T) {
	archive := Archive{Root: t.TempDir()}
	source := &fakeGameSource{gameIds: []string{"102", "101"}}

	_, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)

	source.infoCalls = nil
	stats, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)
	require.Zero(t, stats.Fetched)
	require.Empty(t, source.infoCalls)
}

func TestSyncSkipsArchivedGames(t *testing.T) {
	archive := Archive{Root: t.TempDir()}
	// the game file exists but the cursor does not know about it yet,
	// the shape an interrupted sync leaves behind
	err := archive.writeRecord("alice", games.Record{Id: "102"})
	require.NoError(t, err)

	source := &fakeGameSource{gameIds: []string{"102", "101"}}
	stats, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Fetched)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, []string{"101"}, source.infoCalls)
}

func TestSyncKeepsCursorOnFetchFailure(t *testing.T) {
	archive := Archive{Root: t.TempDir(), FetchWorkers: 1}
	boom := errors.New("game service unavailable")
	source := &fakeGameSource{
		gameIds:  []string{"103", "102", "101"},
		infoErrs: map[string]error{"102": boom},
	}

	_, err := archive.Sync(context.Background(), source, "alice")
	require.ErrorIs(t, err, boom)

	// the cursor must not advance past an incomplete run
	cursor, err := archive.Cursor("alice")
	require.NoError(t, err)
	require.Empty(t, cursor.LastGameId)

	// the games that did land stay durable and are skipped on retry
	source.infoErrs = nil
	source.infoCalls = nil
	stats, err := archive.Sync(context.Background(), source, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Fetched)
	require.Equal(t, 2, stats.Skipped)
	require.Equal(t, []string{"102"}, source.infoCalls)
}

func TestIterateNewestFirst(t *testing.T) {
	archive := Archive{Root: t.TempDir()}
	for _, id := range []string{"5", "3", "9"} {
		require.NoError(t, archive.writeRecord("alice", games.Record{Id: id}))
	}

	var seen []string
	err := archive.Iterate(context.Background(), "alice", func(record games.Record) error {
		seen = append(seen, record.Id)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"9", "5", "3"}, seen)
}

func TestIterateEmptyArchive(t *testing.T) {
	archive := Archive{Root: t.TempDir()}
	err := archive.Iterate(context.Background(), "nobody", func(games.Record) error {
		t.Fatal("unexpected record")
		return nil
	})
	require.NoError(t, err)
}

func TestIterateStopsOnVisitError(t *testing.T) {
	archive := Archive{Root: t.TempDir()}
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, archive.writeRecord("alice", games.Record{Id: id}))
	}

	boom := errors.New("enough")
	var seen int
	err := archive.Iterate(context.Background(), "alice", func(games.Record) error {
		seen++
		if seen == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, seen)
}
