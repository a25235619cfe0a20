package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Metadata is what a product page yields. Empty fields mean the page
// didn't expose them; the catalog fills fallbacks.
type Metadata struct {
	Name        string
	Price       string
	Description string
	Image       string
}

// Scraper pulls og/meta tags and an "Rp"-style price out of a product
// page. Shop pages are rate limited per process so a burst of
// add-product requests can't hammer the storefront.
type Scraper struct {
	http    *http.Client
	limiter *rate.Limiter
}

const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

func NewScraper(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
}

func (s *Scraper) Fetch(ctx context.Context, url string) (Metadata, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Metadata{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("catalog: fetch %s: %s", url, resp.Status)
	}

	// Product pages can be huge; metadata lives near the top.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return Metadata{}, err
	}
	return parseMetadata(string(body)), nil
}

var (
	titleRe    = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	ogTitleRe  = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']+)["']`)
	ogImageRe  = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:image["'][^>]*content=["']([^"']+)["']`)
	imgRe      = regexp.MustCompile(`(?i)<img[^>]*src=["']([^"']+)["']`)
	metaDescRe = regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']+)["']`)
	ogDescRe   = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']+)["']`)
	priceRe    = regexp.MustCompile(`(?i)Rp\s?[\d.,]+[kK]?`)
)

func parseMetadata(html string) Metadata {
	var m Metadata

	if match := firstGroup(ogTitleRe, html); match != "" {
		m.Name = truncate(strings.TrimSpace(match), 100)
	} else if match := firstGroup(titleRe, html); match != "" {
		m.Name = truncate(strings.TrimSpace(match), 100)
	}

	if match := firstGroup(ogImageRe, html); match != "" {
		m.Image = match
	} else if match := firstGroup(imgRe, html); match != "" {
		m.Image = match
	}

	if match := firstGroup(metaDescRe, html); match != "" {
		m.Description = truncate(strings.TrimSpace(match), 150)
	} else if match := firstGroup(ogDescRe, html); match != "" {
		m.Description = truncate(strings.TrimSpace(match), 150)
	}

	if match := priceRe.FindString(html); match != "" {
		m.Price = strings.TrimSpace(match)
	}

	return m
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
