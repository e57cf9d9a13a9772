package imaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	_ "image/jpeg"
	"image/png"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxBytes    = 25 * 1024 * 1024
	defaultConcurrency = 4
	maxRedirects       = 5
	// maxOpacityDecodeBytes bounds the full PNG decode used for opacity.
	maxOpacityDecodeBytes = 8 * 1024 * 1024
	// defaultMaxDecodePixels caps the declared size of a PNG we fully decode;
	// a tiny file can declare a huge canvas.
	defaultMaxDecodePixels = 25_000_000
)

// Config bounds image fetching.
type Config struct {
	Timeout     time.Duration
	MaxBytes    int64
	Concurrency int
	UserAgent   string
	// MaxDecodePixels bounds width*height for the opacity decode.
	MaxDecodePixels int64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxDecodePixels <= 0 {
		c.MaxDecodePixels = defaultMaxDecodePixels
	}
	if c.UserAgent == "" {
		c.UserAgent = "rawaudit/1.0"
	}
	return c
}

// Inspector fetches and measures images.
type Inspector struct {
	client *http.Client
	cfg    Config
	log    logger.Logger
}

// New builds an Inspector with its own pooled HTTP client.
func New(cfg Config, log logger.Logger) *Inspector {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.Concurrency,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}
	return &Inspector{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		cfg: cfg,
		log: log.With(logger.Component("imaging")),
	}
}

// InspectAll measures every reference, fetching each distinct URL once with
// bounded concurrency. Records are returned in input order. When ctx ends,
// unfetched assets carry a cancellation note and ctx.Err() is returned.
func (i *Inspector) InspectAll(ctx context.Context, refs []crawler.ImageRef) ([]*ImageRecord, error) {
	urls := make([]string, 0, len(refs))
	assets := make(map[string]*Asset, len(refs))
	for _, ref := range refs {
		if _, ok := assets[ref.URL]; !ok {
			assets[ref.URL] = nil
			urls = append(urls, ref.URL)
		}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, i.cfg.Concurrency)
	)

	for _, u := range urls {
		select {
		case <-ctx.Done():
			mu.Lock()
			assets[u] = &Asset{URL: u, Note: "inspection cancelled"}
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()

			asset := i.fetch(ctx, u)
			mu.Lock()
			assets[u] = asset
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	records := make([]*ImageRecord, 0, len(refs))
	for _, ref := range refs {
		rec := &ImageRecord{Ref: ref, Asset: assets[ref.URL]}
		tagRecord(rec)
		records = append(records, rec)
	}

	return records, ctx.Err()
}

func (i *Inspector) fetch(ctx context.Context, rawURL string) *Asset {
	asset := &Asset{URL: rawURL}

	if err := ctx.Err(); err != nil {
		asset.Note = "inspection cancelled"
		return asset
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		asset.Note = fmt.Sprintf("invalid image url: %v", err)
		return asset
	}
	req.Header.Set("User-Agent", i.cfg.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8")

	resp, err := i.client.Do(req)
	if err != nil {
		asset.Note = fmt.Sprintf("fetch failed: %v", err)
		i.log.Debug("Image fetch failed", logger.String("url", rawURL), logger.Error(err))
		return asset
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		asset.Note = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return asset
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.cfg.MaxBytes+1))
	if err != nil {
		asset.Note = fmt.Sprintf("read failed: %v", err)
		return asset
	}
	if int64(len(body)) > i.cfg.MaxBytes {
		asset.Note = fmt.Sprintf("image exceeds %d bytes", i.cfg.MaxBytes)
		asset.Bytes = int64(len(body))
		return asset
	}

	measure(asset, body, resp.Header.Get("Content-Type"), i.cfg.MaxDecodePixels)
	return asset
}

// measure fills the size, hash, dimensions and format of an asset. Opacity
// is decoded only for PNGs whose declared canvas is at most maxPixels.
func measure(asset *Asset, body []byte, contentType string, maxPixels int64) {
	sum := sha256.Sum256(body)
	asset.Fetched = true
	asset.Bytes = int64(len(body))
	asset.Hash = hex.EncodeToString(sum[:])
	asset.ContentType = contentType

	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err == nil {
		asset.Width, asset.Height, asset.Format = cfg.Width, cfg.Height, format
	} else {
		asset.Format = formatFromMetadata(contentType, asset.URL)
		if !errors.Is(err, image.ErrFormat) {
			asset.Note = fmt.Sprintf("decode failed: %v", err)
		}
	}

	pixels := int64(asset.Width) * int64(asset.Height)
	if asset.Format == "png" && err == nil && pixels <= maxPixels && len(body) <= maxOpacityDecodeBytes {
		if img, decodeErr := png.Decode(bytes.NewReader(body)); decodeErr == nil {
			opaque := isOpaque(img)
			asset.Opaque = &opaque
		}
	}
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

func formatFromMetadata(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "image/") {
		sub := strings.TrimPrefix(mediaType, "image/")
		return strings.TrimSuffix(sub, "+xml")
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(stripQuery(rawURL)), "."))
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
