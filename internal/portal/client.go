package portal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	BaseURL     string
	Email       string
	Password    string
	SnapshotDir string

	// MaxRetries bounds the login and category-selection loops.
	MaxRetries int
	// ElementWait bounds a single wait for a portal element.
	ElementWait time.Duration
	// ConsentWait bounds the tolerant wait for the consent banner.
	ConsentWait time.Duration
	// RunTimeout is the outer deadline for one whole run.
	RunTimeout time.Duration
	// PollStep is the re-fetch cadence while waiting for an element.
	PollStep time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.ElementWait <= 0 {
		o.ElementWait = 10 * time.Second
	}
	if o.ConsentWait <= 0 {
		o.ConsentWait = 5 * time.Second
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 5 * time.Minute
	}
	if o.PollStep <= 0 {
		o.PollStep = 500 * time.Millisecond
	}
}

// Client runs the portal workflow. One Client serves all users; each run
// opens its own session with a fresh cookie jar.
type Client struct {
	baseURL *url.URL
	opts    Options
	sink    Sink
	log     *slog.Logger
}

func NewClient(opts Options, sink Sink, log *slog.Logger) (*Client, error) {
	opts.applyDefaults()
	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("portal url: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{baseURL: baseURL, opts: opts, sink: sink, log: log}, nil
}

// runSession is the per-run browser-session equivalent: an HTTP client with
// its own cookies, closed implicitly when the run returns.
type runSession struct {
	c    *Client
	http *resty.Client
	log  *slog.Logger
	id   string
}

func (c *Client) newSession(runID string, log *slog.Logger) (*runSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(c.opts.BaseURL)
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.baseURL.Hostname()))
	client.SetTimeout(30 * time.Second)

	return &runSession{c: c, http: client, log: log, id: runID}, nil
}

func (s *runSession) getDoc(ctx context.Context, path string) (*goquery.Document, []byte, error) {
	res, err := s.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, nil, err
	}
	if res.StatusCode() >= 400 {
		return nil, nil, fmt.Errorf("GET %s: status %d", path, res.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, nil, err
	}
	return doc, res.Body(), nil
}

func (s *runSession) postForm(ctx context.Context, path string, form map[string]string) (*goquery.Document, error) {
	res, err := s.http.R().SetContext(ctx).SetFormData(form).Post(path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() >= 400 {
		return nil, fmt.Errorf("POST %s: status %d", path, res.StatusCode())
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}

// waitFor re-fetches path until pred matches or the timeout elapses, the
// HTTP analog of waiting for an element to become visible.
func (s *runSession) waitFor(ctx context.Context, timeout time.Duration, path string, pred func(*goquery.Document) bool) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		doc, _, err := s.getDoc(ctx, path)
		if err == nil && pred(doc) {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("timed out waiting on %s: %w", path, err)
			}
			return nil, fmt.Errorf("timed out waiting on %s", path)
		case <-time.After(s.c.opts.PollStep):
		}
	}
}

// snapshot saves a copy of a fetched page for diagnostics. Best effort.
func (s *runSession) snapshot(name string, body []byte) {
	dir := s.c.opts.SnapshotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("snapshot dir", "err", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.html", name, s.id))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		s.log.Warn("write snapshot", "err", err)
	}
}
