package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PageCount reads the crawl bound from a page's own pagination
// control. A page without the control is a single-page listing.
func PageCount(doc *goquery.Document) int {
	sel := doc.Find("span.page-index")
	if sel.Length() == 0 {
		return 1
	}
	last := sel.Last()
	if v, ok := last.Attr("pageindex"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(last.Text())); err == nil && n > 0 {
		return n
	}
	return 1
}

// VisitFunc consumes one fetched page. Returning stop=true ends the
// crawl early (a caller-known item was observed, or an item quota was
// reached).
type VisitFunc func(doc *goquery.Document, page int) (stop bool, err error)

// WalkPages fetches numbered pages in increasing order, starting at
// page 1, until the bound read from the first page is exhausted or the
// visitor stops the crawl. A crawl over an empty listing visits one
// page and terminates, which is valid.
func (c *Client) WalkPages(ctx context.Context, pathFor func(page int) string, visit VisitFunc) error {
	ctx, span := tracer.Start(ctx, "client:WalkPages")
	defer span.End()

	total := 1
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, err := c.GetDoc(ctx, pathFor(page))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch page")
			return err
		}
		if page == 1 {
			total = PageCount(doc)
			span.SetAttributes(attribute.Int("total_pages", total))
		}

		stop, err := visit(doc, page)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "visitor failed")
			return err
		}
		if stop {
			span.SetAttributes(attribute.Int("stopped_at", page))
			return nil
		}
	}
	return nil
}
