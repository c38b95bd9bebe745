package commands

import (
	"database/sql"
	"time"

	"github.com/aropan/raic-cli/lib/gamearchive"
	"github.com/aropan/raic-cli/lib/ratingstore"
	"github.com/aropan/raic-cli/lib/ratingstore/db"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var syncRatings *bool

func init() {
	syncRatings = syncCmd.Flags().Bool("ratings", false, "record observed rating changes into the rating store")
	rootCmd.AddCommand(syncCmd)
}

func pushRatings(cmd *cobra.Command, archive gamearchive.Archive, username string) error {
	sqlite, err := sql.Open("sqlite", config.RatingDb)
	if err != nil {
		return err
	}
	defer sqlite.Close()
	_, err = sqlite.ExecContext(cmd.Context(), db.Schema)
	if err != nil {
		return err
	}
	store := ratingstore.NewStore(sqlite)

	var points []ratingstore.Point
	err = archive.Iterate(cmd.Context(), username, func(record games.Record) error {
		for _, player := range record.Players {
			if player.Username != username || player.RatingChange == nil {
				continue
			}
			points = append(points, ratingstore.Point{
				GameId: record.Id,
				Time:   time.Unix(record.CreationTime, 0),
				Delta:  *player.RatingChange,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return store.Push(cmd.Context(), username, points)
}

var syncCmd = &cobra.Command{
	Use:   "sync <username> [--ratings]",
	Short: "Incrementally archives the user's game history.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		username := args[0]

		client, err := signedInClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		archive := gamearchive.Archive{
			Root:         config.ArchiveDir,
			FetchWorkers: config.FetchWorkers,
		}
		_, err = archive.Sync(ctx, games.NewClient(client), username)
		if err != nil {
			return err
		}

		if *syncRatings {
			return pushRatings(cmd, archive, username)
		}
		return nil
	},
}
