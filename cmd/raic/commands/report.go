package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/aropan/raic-cli/lib/gamearchive"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var reportLimit *int

func init() {
	reportLimit = reportCmd.Flags().Int("limit", 0, "only show the most recent games, 0 shows everything")
	rootCmd.AddCommand(reportCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

var reportCmd = &cobra.Command{
	Use:   "report <username> [--limit <n>]",
	Short: "Renders the user's archived games as a table.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		archive := gamearchive.Archive{Root: config.ArchiveDir}

		t := newTable()
		t.AppendHeader(table.Row{"game", "time", "place", "score", "strategy", "rating"})

		shown := 0
		totalDelta := 0
		err := archive.Iterate(cmd.Context(), username, func(record games.Record) error {
			if *reportLimit > 0 && shown >= *reportLimit {
				return nil
			}
			for _, player := range record.Players {
				if player.Username != username {
					continue
				}
				rating := ""
				if player.RatingChange != nil {
					rating = fmt.Sprintf("%+d", *player.RatingChange)
					totalDelta += *player.RatingChange
				}
				t.AppendRow(table.Row{
					record.Id,
					time.Unix(record.CreationTime, 0).Format(time.DateTime),
					player.Rank,
					player.Score,
					player.StrategyVersion,
					rating,
				})
				shown++
			}
			return nil
		})
		if err != nil {
			return err
		}

		t.AppendFooter(table.Row{"", "", "", "", "total", fmt.Sprintf("%+d", totalDelta)})
		t.Render()
		return nil
	},
}
