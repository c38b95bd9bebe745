// Package games speaks the game-related surface of the contest
// service: per-user game listings, full game details, opponent
// suggestions, strategy version counts and game creation.
package games

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/raicup/games")

type Client struct {
	Core *core.Client
}

func NewClient(coreClient *core.Client) Client {
	return Client{Core: coreClient}
}

type Player struct {
	Username        string  `json:"username"`
	Rank            int     `json:"rank"`
	Score           float64 `json:"score"`
	StrategyVersion int     `json:"strategyVersion"`
	ConsumedTime    int64   `json:"consumedTime"`
	MemoryUsed      int64   `json:"memoryUsed"`
	RatingChange    *int    `json:"ratingChange,omitempty"`
}

// Record is a finished game as the service reports it. The local
// archive is only a cache of these, the service stays the origin.
type Record struct {
	Id           string            `json:"gameId"`
	CreationTime int64             `json:"creationTime"`
	ContestId    int64             `json:"contestId"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Players      []Player          `json:"players"`
}

// ListingPage is one fetched page of a user's game history, newest
// first within the page.
type ListingPage struct {
	Index   int
	Total   int
	UserId  string
	GameIds []string
}

func listingPath(username string) func(page int) string {
	return func(page int) string {
		return fmt.Sprintf("/gamesByUser/%s/page/%d", username, page)
	}
}

func parseListing(doc *goquery.Document, page int) ListingPage {
	listing := ListingPage{
		Index: page,
		Total: core.PageCount(doc),
	}
	table := doc.Find("table.gamesTable")
	listing.UserId = table.AttrOr("data-user-id", "")
	table.Find("tr[data-game-id]").Each(func(_ int, row *goquery.Selection) {
		id := row.AttrOr("data-game-id", "")
		if id != "" {
			listing.GameIds = append(listing.GameIds, id)
		}
	})
	return listing
}

// ListUserGames crawls the user's game history pages in increasing
// page order. The visitor can stop the crawl early, which the archive
// uses once it reaches an already-seen game id.
func (c Client) ListUserGames(ctx context.Context, username string, visit func(page ListingPage) (stop bool, err error)) error {
	ctx, span := tracer.Start(ctx, "client:ListUserGames")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	return c.Core.WalkPages(ctx, listingPath(username), func(doc *goquery.Document, page int) (bool, error) {
		return visit(parseListing(doc, page))
	})
}

// Info fetches the full detail of one game by id.
func (c Client) Info(ctx context.Context, id string) (Record, error) {
	ctx, span := tracer.Start(ctx, "client:Info")
	defer span.End()
	span.SetAttributes(attribute.String("game_id", id))

	var record Record
	err := c.Core.GetJson(ctx, fmt.Sprintf("/data/game/%s", id), &record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch game info")
		return Record{}, err
	}
	if record.Id == "" {
		record.Id = id
	}
	return record, nil
}

// SuggestedOpponents asks the service for a batch of random opponents
// that make sense against the given user.
func (c Client) SuggestedOpponents(ctx context.Context, basedOn string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:SuggestedOpponents")
	defer span.End()
	span.SetAttributes(attribute.String("based_on", basedOn))

	var data struct {
		RandomUsers string `json:"randomUsers"`
	}
	err := c.Core.PostFormJson(ctx, "/data/suggestUser", map[string]string{
		"action":         "getRandomUsers",
		"otherUserLogin": basedOn,
	}, &data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch suggestions")
		return nil, err
	}

	var users []string
	for _, user := range strings.Split(data.RandomUsers, "|") {
		if user != "" {
			users = append(users, user)
		}
	}
	return users, nil
}

// StrategyCount reports how many strategy versions a user has
// submitted. The latest version is count, submitted on the wire as
// count-1.
func (c Client) StrategyCount(ctx context.Context, username string) (int, error) {
	ctx, span := tracer.Start(ctx, "client:StrategyCount")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	var data struct {
		StrategyCount json.Number `json:"strategyCount"`
	}
	err := c.Core.PostFormJson(ctx, "/data/suggestUser", map[string]string{
		"action":    "findStrategyVersions",
		"userLogin": username,
	}, &data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch strategy count")
		return 0, err
	}
	count, err := strconv.Atoi(data.StrategyCount.String())
	if err != nil {
		span.SetStatus(codes.Error, "malformed strategy count")
		return 0, fmt.Errorf("malformed strategy count %q for %s", data.StrategyCount, username)
	}
	return count, nil
}
