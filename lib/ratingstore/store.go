// Package ratingstore records the rating deltas observed in archived
// games, so rating history survives even after the service prunes old
// game pages.
package ratingstore

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Point is one observed rating change: the game that caused it and
// when it happened.
type Point struct {
	GameId string
	Time   time.Time
	Delta  int
}

// Push upserts rating points for a user. Re-pushing the same game is a
// no-op update, so repeated syncs stay idempotent.
func (s Store) Push(ctx context.Context, user string, points []Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO rating_change (user, game_id, time, delta)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (user, game_id)
			 DO UPDATE SET time = excluded.time, delta = excluded.delta`,
			user, p.GameId, p.Time.Unix(), p.Delta,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Pull returns a user's rating points since the given time, ascending.
func (s Store) Pull(ctx context.Context, user string, since time.Time) ([]Point, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT game_id, time, delta FROM rating_change
		 WHERE user = ? AND time >= ?
		 ORDER BY time ASC, game_id ASC`,
		user, since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			p    Point
			unix int64
		)
		err := rows.Scan(&p.GameId, &unix, &p.Delta)
		if err != nil {
			return nil, err
		}
		p.Time = time.Unix(unix, 0)
		points = append(points, p)
	}
	return points, rows.Err()
}
