// Package standings crawls paginated contest leaderboards.
package standings

import (
	"context"
	"fmt"

	"github.com/aropan/raic-cli/lib/htmlutil"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/raicup/standings")

type Client struct {
	Core *core.Client
}

func NewClient(coreClient *core.Client) Client {
	return Client{Core: coreClient}
}

// Source names a slice of a contest leaderboard: the top Count
// contestants, optionally minus everyone who also appears in the
// standings of ExcludeContest.
type Source struct {
	Contest        string `json:"contest" validate:"required"`
	Count          int    `json:"count" validate:"gt=0"`
	ExcludeContest string `json:"exclude_contest"`
}

func standingsPath(contest string) func(page int) string {
	return func(page int) string {
		return fmt.Sprintf("/contest/%s/standings/page/%d", contest, page)
	}
}

func pageUsers(doc *goquery.Document) []string {
	var users []string
	doc.Find("table.standings td.contestant a").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			name := htmlutil.CleanText(node)
			if name != "" {
				users = append(users, name)
			}
		}
	})
	return users
}

// allUsers walks the full standings of a contest. Used for the
// exclusion set, where stopping early could let an excluded user slip
// through.
func (c Client) allUsers(ctx context.Context, contest string) (map[string]bool, error) {
	users := map[string]bool{}
	err := c.Core.WalkPages(ctx, standingsPath(contest), func(doc *goquery.Document, _ int) (bool, error) {
		for _, user := range pageUsers(doc) {
			users[user] = true
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// TopUsers returns the top ranked usernames of the source contest, in
// standings order, stopping as soon as the requested count is filled.
func (c Client) TopUsers(ctx context.Context, src Source) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:TopUsers")
	defer span.End()
	span.SetAttributes(
		attribute.String("contest", src.Contest),
		attribute.Int("count", src.Count),
	)

	excluded := map[string]bool{}
	if src.ExcludeContest != "" {
		var err error
		excluded, err = c.allUsers(ctx, src.ExcludeContest)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to crawl exclusion contest")
			return nil, err
		}
	}

	var users []string
	err := c.Core.WalkPages(ctx, standingsPath(src.Contest), func(doc *goquery.Document, _ int) (bool, error) {
		for _, user := range pageUsers(doc) {
			if excluded[user] {
				continue
			}
			users = append(users, user)
			if len(users) >= src.Count {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to crawl standings")
		return nil, err
	}
	span.SetAttributes(attribute.Int("found", len(users)))
	return users, nil
}
