package commands

import (
	"log/slog"

	"github.com/aropan/raic-cli/lib/matchmaker"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/standings"

	"github.com/spf13/cobra"
)

var createCount *int

func init() {
	createCount = createCmd.Flags().IntP("count", "n", 1, "games to create, 0 keeps going until interrupted")
	rootCmd.AddCommand(createCmd)
}

var createCmd = &cobra.Command{
	Use:   "create [--count <n>]",
	Short: "Creates ranked games against the configured participants.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := signedInClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		gamesClient := games.NewClient(client)
		resolver := &matchmaker.Resolver{
			Opponents:       gamesClient,
			Boards:          standings.NewClient(client),
			AllowDuplicates: config.AllowDuplicates,
		}
		scheduler := matchmaker.NewScheduler(resolver, gamesClient, matchmaker.SchedulerOptions{
			Specs:   config.Users,
			Formats: config.Formats,
			Quota:   quota(),
		})

		err = scheduler.Run(ctx, *createCount)
		if err != nil {
			return err
		}
		slog.Info("done", "enforced_quota_games", scheduler.Quota().Games, "enforced_quota_window", scheduler.Quota().Window)
		return nil
	},
}
