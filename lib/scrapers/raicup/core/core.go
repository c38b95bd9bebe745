package core

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/aropan/raic-cli/lib/htmlutil"
	"github.com/aropan/raic-cli/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/raicup/core")

var ErrSignInFailed = fmt.Errorf("Failed to sign in to your account.")

const csrfMetaName = "X-Csrf-Token"

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	cookies CookieStore

	statusRetryDelay time.Duration
	transportBackoff time.Duration

	tokenMu   sync.RWMutex
	csrfToken string
}

type ClientOptions struct {
	BaseUrl string
	// optional, cookies persist across runs when set
	Cookies CookieStore
	// optional, defaults to 30 seconds
	Timeout time.Duration
	// optional, delay between retries of non-2xx responses
	StatusRetryDelay time.Duration
	// optional, suspension after a transport-level failure
	TransportBackoff time.Duration
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "scrapers/raicup/http")

	statusRetryDelay := opts.StatusRetryDelay
	if statusRetryDelay == 0 {
		statusRetryDelay = defaultStatusRetryDelay
	}
	transportBackoff := opts.TransportBackoff
	if transportBackoff == 0 {
		transportBackoff = defaultTransportBackoff
	}

	c := &Client{
		BaseUrl:          baseUrl,
		Http:             client,
		cookies:          opts.Cookies,
		statusRetryDelay: statusRetryDelay,
		transportBackoff: transportBackoff,
	}
	if opts.Cookies != nil {
		cookies, err := opts.Cookies.Load()
		if err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
		jar.SetCookies(baseUrl, cookies)
	}
	return c, nil
}

// Close flushes session cookies back to the cookie store. It must run
// on every exit path so a still-valid remote session survives the
// process.
func (c *Client) Close() error {
	if c.cookies == nil {
		return nil
	}
	return c.cookies.Save(c.Http.GetClient().Jar.Cookies(c.BaseUrl))
}

// CsrfToken returns the anti-forgery token most recently seen on any
// fetched page.
func (c *Client) CsrfToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.csrfToken
}

func (c *Client) refreshCsrfToken(doc *goquery.Document) {
	token := htmlutil.MetaContent(doc, csrfMetaName)
	if token == "" {
		return
	}
	c.tokenMu.Lock()
	c.csrfToken = token
	c.tokenMu.Unlock()
}

// PageErrors collects the validation error texts the service renders
// into form pages.
func PageErrors(doc *goquery.Document) []string {
	var errs []string
	doc.Find(".error .help-block").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			text := htmlutil.CleanText(node)
			if text != "" {
				errs = append(errs, text)
			}
		}
	})
	return errs
}

func isAuthorized(doc *goquery.Document) bool {
	return doc.Find(`a.logout[href*="signOut"]`).Length() > 0
}

// SignIn authenticates the session. When restored cookies still hold a
// live session it returns without prompting.
func (c *Client) SignIn(ctx context.Context, prompt CredentialPrompter) error {
	ctx, span := tracer.Start(ctx, "client:SignIn")
	defer span.End()

	doc, err := c.GetDoc(ctx, "/signIn")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch sign in page")
		return err
	}
	if isAuthorized(doc) {
		span.AddEvent("session restored from cookies")
		return nil
	}

	username, err := prompt.Username()
	if err != nil {
		return err
	}
	password, err := prompt.Password()
	if err != nil {
		return err
	}

	form := htmlutil.FormValues(doc.Find("form").Last())
	form["loginOrEmail"] = username
	form["password"] = password

	doc, err = c.PostFormDoc(ctx, "/signIn", form)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit sign in form")
		return err
	}
	if errs := PageErrors(doc); len(errs) > 0 {
		span.SetStatus(codes.Error, ErrSignInFailed.Error())
		return fmt.Errorf("%w: %v", ErrSignInFailed, errs)
	}
	if !isAuthorized(doc) {
		span.SetStatus(codes.Error, ErrSignInFailed.Error())
		return ErrSignInFailed
	}
	return nil
}
