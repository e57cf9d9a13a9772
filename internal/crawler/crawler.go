// Package crawler fetches a site breadth-first within its seed host and
// extracts the structural signals the analyzer needs.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// ErrInvalidSeed is returned when the seed URL cannot be crawled.
var ErrInvalidSeed = errors.New("invalid seed url")

// Config bounds a crawl.
type Config struct {
	MaxPages         int
	RequestTimeout   time.Duration
	MaxBodySize      int
	BodyTextLimit    int
	UserAgent        string
	RespectRobotsTxt bool
}

const (
	defaultMaxPages       = 25
	defaultRequestTimeout = 10 * time.Second
	defaultMaxBodySize    = 10 * 1024 * 1024
	defaultBodyTextLimit  = 5000
	defaultUserAgent      = "rawaudit/1.0"
)

// WithDefaults returns a copy with zero fields filled.
func (c Config) WithDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.BodyTextLimit <= 0 {
		c.BodyTextLimit = defaultBodyTextLimit
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// PageFunc observes each record as soon as it is produced. visited counts
// records produced so far, including this one.
type PageFunc func(visited int, page *PageRecord)

// Crawler is safe for sequential reuse; each Crawl builds its own collector.
type Crawler struct {
	cfg Config
	log logger.Logger
}

// New creates a Crawler.
func New(cfg Config, log logger.Logger) *Crawler {
	return &Crawler{cfg: cfg.WithDefaults(), log: log.With(logger.Component("crawler"))}
}

// MaxPages is the configured default page ceiling.
func (c *Crawler) MaxPages() int {
	return c.cfg.MaxPages
}

// Crawl visits up to maxPages URLs reachable from seed on the seed's host,
// in breadth-first order. Individual fetch failures become degraded records.
// The returned error is ErrInvalidSeed or, when ctx ends mid-crawl, ctx.Err()
// together with the pages gathered so far.
func (c *Crawler) Crawl(ctx context.Context, seed string, maxPages int, onPage PageFunc) ([]*PageRecord, error) {
	if maxPages <= 0 {
		maxPages = c.cfg.MaxPages
	}

	seedKey, err := NormalizeURL(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	host, err := Hostname(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	run := &crawlRun{
		cfg:       c.cfg,
		log:       c.log.With(logger.String("host", host)),
		host:      host,
		collector: c.newCollector(ctx, host),
		visited:   map[string]struct{}{seedKey: {}},
		queue:     []string{strings.TrimSpace(seed)},
	}
	run.bind()

	pages := make([]*PageRecord, 0, maxPages)
	for len(run.queue) > 0 && len(pages) < maxPages {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pages, ctxErr
		}

		next := run.queue[0]
		run.queue = run.queue[1:]

		page := run.visit(next)
		pages = append(pages, page)
		if onPage != nil {
			onPage(len(pages), page)
		}
	}

	run.log.Info("Crawl finished",
		logger.Int("pages", len(pages)),
		logger.Int("frontier_remaining", len(run.queue)),
	)
	return pages, nil
}

func (c *Crawler) newCollector(ctx context.Context, host string) *colly.Collector {
	collector := colly.NewCollector(
		colly.AllowedDomains(host),
		colly.UserAgent(c.cfg.UserAgent),
		colly.MaxBodySize(c.cfg.MaxBodySize),
		colly.ParseHTTPErrorResponse(),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(c.cfg.RequestTimeout)
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobotsTxt
	return collector
}

type crawlRun struct {
	cfg       Config
	log       logger.Logger
	host      string
	collector *colly.Collector
	visited   map[string]struct{}
	queue     []string

	response *colly.Response
	fetchErr error
}

// bind registers the collector callbacks once. The collector runs
// synchronously, so the fields they write belong to the visit in progress.
func (r *crawlRun) bind() {
	r.collector.OnResponse(func(resp *colly.Response) { r.response = resp })
	r.collector.OnError(func(resp *colly.Response, err error) {
		r.response, r.fetchErr = resp, err
	})
}

// visit performs the single fetch for target and enqueues newly discovered
// same-host links.
func (r *crawlRun) visit(target string) *PageRecord {
	r.response, r.fetchErr = nil, nil

	start := time.Now()
	visitErr := r.collector.Visit(target)
	elapsed := time.Since(start)

	page := &PageRecord{URL: target, LoadTimeMs: elapsed.Milliseconds()}

	if visitErr != nil && r.fetchErr == nil {
		r.fetchErr = visitErr
	}
	if r.response != nil {
		page.StatusCode = r.response.StatusCode
	}
	if r.fetchErr != nil {
		page.FetchError = r.fetchErr.Error()
		r.log.Warn("Page fetch failed",
			logger.String("url", target),
			logger.Int("status", page.StatusCode),
			logger.Error(r.fetchErr),
		)
		return page
	}

	base := r.finalURL(target)
	page.URL = base.String()
	if key, err := NormalizeURL(page.URL); err == nil {
		r.visited[key] = struct{}{}
	}

	if page.StatusCode != http.StatusOK {
		page.FetchError = fmt.Sprintf("unexpected status %d", page.StatusCode)
		return page
	}
	if !isHTML(r.response) {
		return page
	}

	if err := extract(page, base, r.response.Body, r.cfg.BodyTextLimit); err != nil {
		page.FetchError = err.Error()
		return page
	}
	r.enqueue(page.Links)

	return page
}

func (r *crawlRun) finalURL(target string) *url.URL {
	if r.response != nil && r.response.Request != nil && r.response.Request.URL != nil {
		return r.response.Request.URL
	}
	u, err := url.Parse(target)
	if err != nil {
		return &url.URL{Scheme: "https", Host: r.host, Path: "/"}
	}
	return u
}

func (r *crawlRun) enqueue(links []Link) {
	for _, link := range links {
		if !link.Internal {
			continue
		}
		key, err := NormalizeURL(link.URL)
		if err != nil {
			continue
		}
		if _, seen := r.visited[key]; seen {
			continue
		}
		r.visited[key] = struct{}{}
		r.queue = append(r.queue, link.URL)
	}
}

func isHTML(resp *colly.Response) bool {
	if resp == nil || resp.Headers == nil {
		return false
	}
	ct := strings.ToLower(resp.Headers.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "html")
}
