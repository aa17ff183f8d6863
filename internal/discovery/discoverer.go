// Package discovery walks the paginated harvest listing and collects archive URLs.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/michaelprice232/book-harvester/internal/observability"
)

// Discoverer pages through the harvest listing endpoint, accumulating unique
// archive URLs until the target count is reached or the listing is exhausted.
type Discoverer struct {
	client     *http.Client
	listingURL string
	userAgent  string
	limiter    *rate.Limiter
	logger     observability.Logger
	metrics    *observability.Metrics
}

// New creates a Discoverer. The limiter is shared with the archive fetcher so
// the remote host sees one combined request rate.
func New(listingURL, userAgent string, timeout time.Duration, limiter *rate.Limiter, logger observability.Logger, metrics *observability.Metrics) *Discoverer {
	return &Discoverer{
		client:     &http.Client{Timeout: timeout},
		listingURL: listingURL,
		userAgent:  userAgent,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
	}
}

// Discover collects up to targetCount unique archive URLs. Any page failure is
// fatal to the whole discovery run.
func (d *Discoverer) Discover(ctx context.Context, targetCount int) ([]string, error) {
	seen := make(map[string]bool)
	var urls []string
	cursor := ""

	for len(urls) < targetCount {
		page, latency, err := d.fetchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}

		d.logger.Info("listing page parsed",
			"links", len(page.Links), "cursor", cursor, "next_cursor", page.NextCursor,
			"latency", latency.Round(time.Millisecond).String())
		d.metrics.ObserveDuration("discover_page", latency.Seconds())

		for _, link := range page.Links {
			if seen[link] {
				continue
			}
			seen[link] = true
			urls = append(urls, link)
			if len(urls) == targetCount {
				break
			}
		}

		if page.NextCursor == "" {
			d.logger.Info("listing exhausted", "collected", len(urls))
			break
		}
		cursor = page.NextCursor
	}

	return urls, nil
}

func (d *Discoverer) fetchPage(ctx context.Context, cursor string) (*Page, time.Duration, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	pageURL, err := d.pageURL(cursor)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch listing page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("listing page returned HTTP %d", resp.StatusCode)
	}

	page, err := ParseListing(resp.Body, pageURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse listing page: %w", err)
	}

	return page, time.Since(start), nil
}

// pageURL applies the pagination cursor to the configured listing URL.
func (d *Discoverer) pageURL(cursor string) (*url.URL, error) {
	u, err := url.Parse(d.listingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing URL %q: %w", d.listingURL, err)
	}
	if cursor != "" {
		q := u.Query()
		q.Set("offset", cursor)
		u.RawQuery = q.Encode()
	}
	return u, nil
}
