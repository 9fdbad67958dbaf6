// Package source implements the tile source client: URL templating and
// byte fetching for vector and raster tile sources, with outbound
// requests rate limited to stay within upstream server budgets.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/gogpu/maptile/coords"
)

// SourceType selects the URL template and decode path for a fetch.
type SourceType int

const (
	// Tessellate fetches vector tile bytes to be run through the MVT
	// pipeline.
	Tessellate SourceType = iota
	// Raster fetches image bytes to be decoded directly.
	Raster
)

// Scheme selects the tile numbering convention used when formatting a
// request URL.
type Scheme int

const (
	// XYZ is the Google/OSM slippy-map numbering (origin at the
	// northwest corner).
	XYZ Scheme = iota
	// TMS flips the Y axis so the origin is at the southwest corner.
	TMS
)

// ErrFetch wraps network and HTTP-status failures from Client.Fetch.
type ErrFetch struct {
	cause error
}

func (e *ErrFetch) Error() string { return "source: fetch: " + e.cause.Error() }
func (e *ErrFetch) Unwrap() error { return e.cause }

// ErrHTTPStatus is returned (wrapped in ErrFetch) when the server responds
// with a non-2xx status.
type ErrHTTPStatus struct {
	StatusCode int
	URL        string
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("source: %s: unexpected status %d", e.URL, e.StatusCode)
}

// Request describes one tile fetch.
type Request struct {
	Coords coords.WorldTileCoords
	Type   SourceType
	// URL is the template containing {z}/{x}/{y}/{ext} (and optionally
	// {key}); see FormatURL.
	URL string
	Ext string
	Key string
	// Scheme selects XYZ (default) or TMS y-flip.
	Scheme Scheme
}

// FormatURL renders req's URL template, flipping the Y axis when
// req.Scheme is TMS, against a
// "scheme://host/path/{z}/{x}/{y}.{ext}[?key={key}]" template.
func (req Request) FormatURL() string {
	y := req.Coords.Y
	if req.Scheme == TMS {
		y = int32(1<<uint(req.Coords.Z)) - 1 - y
	}

	url := req.URL
	url = strings.ReplaceAll(url, "{z}", fmt.Sprintf("%d", req.Coords.Z))
	url = strings.ReplaceAll(url, "{x}", fmt.Sprintf("%d", req.Coords.X))
	url = strings.ReplaceAll(url, "{y}", fmt.Sprintf("%d", y))
	url = strings.ReplaceAll(url, "{ext}", req.Ext)
	if req.Key != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = fmt.Sprintf("%s%skey=%s", url, sep, req.Key)
	}
	return url
}

// Client fetches tile bytes over HTTP, rate limiting outbound requests
// with golang.org/x/time/rate so a worker pool issuing many concurrent
// fetches per frame cannot hammer a third-party tile server.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cache   *DiskCache
}

// NewClient creates a Client with the given requests-per-second limit
// (and matching burst). A limit of 0 disables rate limiting.
func NewClient(requestsPerSecond float64, cache *DiskCache) *Client {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond)))
	}
	return &Client{
		http:    &http.Client{},
		limiter: limiter,
		cache:   cache,
	}
}

// Fetch retrieves the tile bytes for req, consulting the disk cache (if
// configured) before issuing an HTTP request, and populating the cache
// afterward on success.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	url := req.FormatURL()

	if c.cache != nil {
		if data, ok := c.cache.Get(url); ok {
			return data, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ErrFetch{cause: err}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ErrFetch{cause: err}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ErrFetch{cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ErrFetch{cause: &ErrHTTPStatus{StatusCode: resp.StatusCode, URL: url}}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrFetch{cause: err}
	}

	if c.cache != nil {
		c.cache.Put(url, data)
	}
	return data, nil
}
