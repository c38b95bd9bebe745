package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

const (
	// non-2xx responses get a bounded retry budget
	maxStatusAttempts       = 5
	defaultStatusRetryDelay = time.Second * 5
	// transport failures (dns, reset, timeout) are expected to
	// self-resolve, so they back off without a cap
	defaultTransportBackoff = time.Minute
)

// StatusError carries the last response after the status retry budget
// is exhausted.
type StatusError struct {
	Response *resty.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"%s %s: %s",
		e.Response.Request.Method,
		e.Response.Request.URL,
		e.Response.Status(),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, form map[string]string) (*resty.Response, error) {
	statusAttempts := 0
	for {
		req := c.Http.R().SetContext(ctx)
		if form != nil {
			req.SetFormData(form)
		}

		res, err := req.Execute(method, path)
		if err != nil {
			slog.WarnContext(
				ctx, "request failed, backing off",
				"method", method,
				"url", path,
				"backoff", c.transportBackoff,
				"err", err,
			)
			if err := sleepCtx(ctx, c.transportBackoff); err != nil {
				return nil, err
			}
			continue
		}

		if res.IsSuccess() {
			return res, nil
		}

		statusAttempts++
		if statusAttempts >= maxStatusAttempts {
			return nil, &StatusError{Response: res}
		}
		slog.WarnContext(
			ctx, "unexpected status, retrying",
			"method", method,
			"url", path,
			"status", res.StatusCode(),
			"attempt", statusAttempts,
		)
		if err := sleepCtx(ctx, c.statusRetryDelay); err != nil {
			return nil, err
		}
	}
}

func isJson(res *resty.Response) bool {
	return strings.Contains(res.Header().Get("content-type"), "application/json")
}

func (c *Client) parseDoc(res *resty.Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, err
	}
	c.refreshCsrfToken(doc)
	return doc, nil
}

// GetDoc fetches a page and parses it, refreshing the cached
// anti-forgery token when the page carries one.
func (c *Client) GetDoc(ctx context.Context, path string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:GetDoc")
	defer span.End()

	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	doc, err := c.parseDoc(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	return doc, nil
}

// GetJson fetches a JSON endpoint into out.
func (c *Client) GetJson(ctx context.Context, path string, out any) error {
	ctx, span := tracer.Start(ctx, "client:GetJson")
	defer span.End()

	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return err
	}
	err = json.Unmarshal(res.Body(), out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode json")
		return err
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, path string, form map[string]string) (*resty.Response, error) {
	withToken := make(map[string]string, len(form)+1)
	for k, v := range form {
		withToken[k] = v
	}
	if _, ok := withToken["csrf_token"]; !ok {
		if token := c.CsrfToken(); token != "" {
			withToken["csrf_token"] = token
		}
	}
	return c.do(ctx, http.MethodPost, path, withToken)
}

// PostFormJson submits a token-bearing form POST and decodes the JSON
// response into out.
func (c *Client) PostFormJson(ctx context.Context, path string, form map[string]string, out any) error {
	ctx, span := tracer.Start(ctx, "client:PostFormJson")
	defer span.End()

	res, err := c.postForm(ctx, path, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post")
		return err
	}
	if !isJson(res) {
		err := fmt.Errorf("expected json from %s, got %q", path, res.Header().Get("content-type"))
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = json.Unmarshal(res.Body(), out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode json")
		return err
	}
	return nil
}

// PostFormDoc submits a token-bearing form POST and parses the HTML
// response.
func (c *Client) PostFormDoc(ctx context.Context, path string, form map[string]string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:PostFormDoc")
	defer span.End()

	res, err := c.postForm(ctx, path, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post")
		return nil, err
	}
	doc, err := c.parseDoc(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	return doc, nil
}
