package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

const (
	ebaySourceName     = "ebay"
	ebayDefaultTimeout = 15 * time.Second
	ebayUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	ebayPricePattern = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{1,2})?)`)
	ebaySoldPattern  = regexp.MustCompile(`(?i)sold\s+([A-Z][a-z]{2}\s+\d{1,2},\s+\d{4})`)
)

// EbaySoldSource scrapes eBay's completed-and-sold search results.
type EbaySoldSource struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewEbaySoldSource creates a scraper limited to ratePerSec requests per second.
func NewEbaySoldSource(baseURL string, ratePerSec float64) *EbaySoldSource {
	if ratePerSec <= 0 {
		ratePerSec = 0.5
	}
	return &EbaySoldSource{
		client:  &http.Client{Timeout: ebayDefaultTimeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

func (s *EbaySoldSource) Name() string {
	return ebaySourceName
}

// FetchListings runs one sold search and parses the result tiles.
func (s *EbaySoldSource) FetchListings(ctx context.Context, q ListingQuery) ([]models.Listing, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Source: ebaySourceName, Err: err}
	}

	params := url.Values{}
	params.Set("_nkw", q.Text)
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	params.Set("_ipg", "120")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", ebayUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.ListingSourceLatency.WithLabelValues(ebaySourceName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ListingSourceRequestsTotal.WithLabelValues(ebaySourceName, "network_error").Inc()
		return nil, &UpstreamError{Source: ebaySourceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ListingSourceRequestsTotal.WithLabelValues(ebaySourceName, "http_error").Inc()
		return nil, &UpstreamError{Source: ebaySourceName, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		metrics.ListingSourceRequestsTotal.WithLabelValues(ebaySourceName, "decode_error").Inc()
		return nil, &UpstreamError{Source: ebaySourceName, Err: err}
	}
	defer reader.Close()
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		metrics.ListingSourceRequestsTotal.WithLabelValues(ebaySourceName, "parse_error").Inc()
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	listings := parseEbaySoldDocument(doc)
	if q.Limit > 0 && len(listings) > q.Limit {
		listings = listings[:q.Limit]
	}
	metrics.ListingSourceRequestsTotal.WithLabelValues(ebaySourceName, "ok").Inc()
	return listings, nil
}

func parseEbaySoldDocument(doc *goquery.Document) []models.Listing {
	var listings []models.Listing
	doc.Find("li.s-item").Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(".s-item__title").First().Text())
		title = strings.TrimPrefix(title, "New Listing")
		title = strings.TrimSpace(title)
		if title == "" || strings.EqualFold(title, "Shop on eBay") {
			return
		}

		price, ok := parseEbayPrice(item.Find(".s-item__price").First().Text())
		if !ok {
			return
		}

		link, _ := item.Find("a.s-item__link").First().Attr("href")
		if i := strings.Index(link, "?"); i > 0 {
			link = link[:i]
		}
		image, _ := item.Find(".s-item__image-img, .s-item__image img").First().Attr("src")

		listing := models.Listing{
			Title:    title,
			Price:    price,
			URL:      link,
			ImageURL: image,
			Source:   ebaySourceName,
		}
		if soldAt, ok := parseEbaySoldDate(item.Text()); ok {
			listing.SoldAt = &soldAt
		}
		listings = append(listings, listing)
	})
	return listings
}

// parseEbayPrice reads "$1,234.56". Ranges such as "$10.00 to $20.00" are rejected.
func parseEbayPrice(text string) (float64, bool) {
	if strings.Contains(strings.ToLower(text), " to ") {
		return 0, false
	}
	m := ebayPricePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || !validPrice(v) {
		return 0, false
	}
	return v, true
}

func parseEbaySoldDate(text string) (time.Time, bool) {
	m := ebaySoldPattern.FindStringSubmatch(strings.Join(strings.Fields(text), " "))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("Jan 2, 2006", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
