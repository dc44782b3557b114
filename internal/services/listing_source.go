package services

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// ErrUpstreamUnavailable marks a listing source failure the caller may retry.
var ErrUpstreamUnavailable = errors.New("listing source unavailable")

// UpstreamError wraps a listing source failure with the source that produced it.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// Retryable is always true; only transient upstream conditions produce an UpstreamError.
func (e *UpstreamError) Retryable() bool {
	return true
}

// ListingQuery describes one sold-listings lookup.
type ListingQuery struct {
	Text    string
	Request models.CardRequest
	Limit   int
}

// ListingSource fetches sold listings for a card.
type ListingSource interface {
	Name() string
	FetchListings(ctx context.Context, q ListingQuery) ([]models.Listing, error)
}

// decodeBody unwraps gzip and brotli response bodies. Closing the returned reader
// releases the decoder only; the caller still closes resp.Body.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return gzipReader, nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	}
	return io.NopCloser(resp.Body), nil
}
