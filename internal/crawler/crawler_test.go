package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		port := srv.Listener.Addr().String()[strings.LastIndex(srv.Listener.Addr().String(), ":")+1:]
		fmt.Fprintf(w, `<html><head><title>Home page of the example site</title>
<meta name="description" content="Welcome"></head><body>
<h1>Home</h1><h2>Intro</h2>
<img src="/img/logo.png" alt="Logo"><img src="/img/hero.jpg" loading="lazy">
<a href="/a">A</a> <a href="b">B</a> <a href="/a#section">A again</a>
<a href="/a?utm_source=news">A tracked</a>
<a href="http://localhost:%s/elsewhere">other host</a>
<a href="mailto:hi@example.com">mail</a><a href="javascript:void(0)">js</a>
<script>var ignored = "script text";</script>
</body></html>`, port)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>A</title></head><body><h1>A</h1>
<a href="/">home</a><a href="c">C</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><p>%s</p></body></html>`, strings.Repeat("word ", 1500))
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("crawler left the seed host")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newCrawler() *crawler.Crawler {
	return crawler.New(crawler.Config{RequestTimeout: 5 * time.Second}, logger.NewNop())
}

func TestCrawl_BreadthFirstWithinHost(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	var observed []int
	pages, err := newCrawler().Crawl(context.Background(), srv.URL+"/", 10, func(n int, _ *crawler.PageRecord) {
		observed = append(observed, n)
	})
	require.NoError(t, err)
	require.Len(t, pages, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, observed)

	paths := make([]string, 0, len(pages))
	seen := map[string]bool{}
	for _, p := range pages {
		host, hostErr := crawler.Hostname(p.URL)
		require.NoError(t, hostErr)
		assert.Equal(t, "127.0.0.1", host)

		key, normErr := crawler.NormalizeURL(p.URL)
		require.NoError(t, normErr)
		assert.False(t, seen[key], "visited twice: %s", key)
		seen[key] = true

		paths = append(paths, strings.TrimPrefix(p.URL, srv.URL))
	}
	assert.Equal(t, []string{"/", "/a", "/b", "/c"}, paths)

	home := pages[0]
	assert.Equal(t, http.StatusOK, home.StatusCode)
	assert.Equal(t, "Home page of the example site", home.Title)
	assert.Equal(t, "Welcome", home.MetaDescription)
	assert.Equal(t, []string{"Home"}, home.H1)
	assert.Equal(t, []string{"Intro"}, home.H2)
	require.Len(t, home.Images, 2)
	assert.True(t, home.Images[0].HasAlt)
	assert.False(t, home.Images[1].HasAlt)
	assert.True(t, home.Images[1].LazyHint)
	assert.NotContains(t, home.BodyText, "script text")

	notFound := pages[2]
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
	assert.NotEmpty(t, notFound.FetchError)
}

func TestCrawl_PageCeiling(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	pages, err := newCrawler().Crawl(context.Background(), srv.URL, 1, nil)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestCrawl_BodyTextCapped(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	pages, err := newCrawler().Crawl(context.Background(), srv.URL+"/c", 1, nil)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1500, pages[0].WordCount)
	assert.Len(t, []rune(pages[0].BodyText), 5000)
}

func TestCrawl_UnreachableIsDegraded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	pages, err := newCrawler().Crawl(context.Background(), addr, 5, nil)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].StatusCode)
	assert.NotEmpty(t, pages[0].FetchError)
}

func TestCrawl_InvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := newCrawler().Crawl(context.Background(), "not a url", 5, nil)
	require.ErrorIs(t, err, crawler.ErrInvalidSeed)
}

func TestCrawl_Cancelled(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages, err := newCrawler().Crawl(ctx, srv.URL, 5, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pages)
}
