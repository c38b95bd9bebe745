package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aropan/raic-cli/lib/configutil"
	"github.com/aropan/raic-cli/lib/matchmaker"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/core"
	"github.com/aropan/raic-cli/lib/telemetry"

	"github.com/spf13/cobra"
)

type QuotaConfig struct {
	// zero values fall back to the defaults, negatives are rejected
	Games         int `json:"games" validate:"omitempty,gt=0"`
	WindowMinutes int `json:"window_minutes" validate:"omitempty,gt=0"`
}

type Config struct {
	BaseUrl    string `json:"base_url" validate:"omitempty,url"`
	CookieFile string `json:"cookie_file"`
	ArchiveDir string `json:"archive_dir"`
	RatingDb   string `json:"rating_db"`

	Users           []matchmaker.ParticipantSpec `json:"users" validate:"dive"`
	Formats         []string                     `json:"formats"`
	Quota           QuotaConfig                  `json:"quota"`
	AllowDuplicates bool                         `json:"allow_duplicates"`

	FetchWorkers int `json:"fetch_workers" validate:"gte=0"`
}

var (
	configFile string
	verbose    bool

	config Config
)

var rootCmd = &cobra.Command{
	Use:   "raic",
	Short: "raic creates ranked games and archives game history on the contest service.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		// telemetry.json5 is optional, spans go nowhere without it
		_, err := telemetry.SetupFromEnv(cmd.Context(), "raic-cli")
		if err != nil && !os.IsNotExist(err) {
			slog.Warn("telemetry setup failed", "err", err)
		}

		config, err = configutil.ReadConfig[Config](configFile)
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %q not found", configFile)
		}
		if err != nil {
			return err
		}
		applyConfigDefaults(&config)
		return matchmaker.ValidateSpecs(config.Users)
	},
}

func applyConfigDefaults(cfg *Config) {
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = "https://russianaicup.ru/"
	}
	if cfg.CookieFile == "" {
		cfg.CookieFile = "cookies.json"
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "games"
	}
	if cfg.RatingDb == "" {
		cfg.RatingDb = "ratings.db"
	}
	if cfg.Quota.Games == 0 {
		cfg.Quota.Games = 4
	}
	if cfg.Quota.WindowMinutes == 0 {
		cfg.Quota.WindowMinutes = 20
	}
}

func quota() matchmaker.Quota {
	return matchmaker.Quota{
		Games:  config.Quota.Games,
		Window: time.Duration(config.Quota.WindowMinutes) * time.Minute,
	}
}

// signedInClient builds the authenticated session. The caller must
// Close it so cookies get flushed on every exit path.
func signedInClient(ctx context.Context) (*core.Client, error) {
	client, err := core.NewClient(ctx, core.ClientOptions{
		BaseUrl: config.BaseUrl,
		Cookies: core.FileCookieStore{Path: config.CookieFile},
	})
	if err != nil {
		return nil, err
	}
	err = client.SignIn(ctx, core.TerminalPrompter{})
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.json5", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
