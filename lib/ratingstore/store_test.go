package ratingstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aropan/raic-cli/lib/ratingstore/db"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	database, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(db.Schema)
	require.NoError(t, err)
	return NewStore(database)
}

func TestPushPull(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	err := store.Push(ctx, "alice", []Point{
		{GameId: "103", Time: base.Add(2 * time.Hour), Delta: -4},
		{GameId: "101", Time: base, Delta: 12},
		{GameId: "102", Time: base.Add(time.Hour), Delta: 7},
	})
	require.NoError(t, err)

	points, err := store.Pull(ctx, "alice", time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, []Point{
		{GameId: "101", Time: base, Delta: 12},
		{GameId: "102", Time: base.Add(time.Hour), Delta: 7},
		{GameId: "103", Time: base.Add(2 * time.Hour), Delta: -4},
	}, points)
}

func TestPushIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		err := store.Push(ctx, "alice", []Point{
			{GameId: "101", Time: base, Delta: 12},
		})
		require.NoError(t, err)
	}

	points, err := store.Pull(ctx, "alice", time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 12, points[0].Delta)
}

func TestPushUpdatesExistingPoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	err := store.Push(ctx, "alice", []Point{{GameId: "101", Time: base, Delta: 12}})
	require.NoError(t, err)
	err = store.Push(ctx, "alice", []Point{{GameId: "101", Time: base, Delta: 15}})
	require.NoError(t, err)

	points, err := store.Pull(ctx, "alice", time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 15, points[0].Delta)
}

func TestPullSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	err := store.Push(ctx, "alice", []Point{
		{GameId: "101", Time: base, Delta: 1},
		{GameId: "102", Time: base.Add(time.Hour), Delta: 2},
	})
	require.NoError(t, err)

	points, err := store.Pull(ctx, "alice", base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "102", points[0].GameId)
}

func TestPullIsolatedPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	err := store.Push(ctx, "alice", []Point{{GameId: "101", Time: base, Delta: 1}})
	require.NoError(t, err)
	err = store.Push(ctx, "bob", []Point{{GameId: "101", Time: base, Delta: -1}})
	require.NoError(t, err)

	points, err := store.Pull(ctx, "bob", time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, -1, points[0].Delta)
}
