// Package datasource defines the acquisition capability over Dragon-Tiger
// data and its concrete variants: a primary HTML-scraping source and a
// fallback structured-data source with a stable schema.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"astock-crawler/internal/entity"
)

// ErrSourceUnavailable reports a network or HTTP failure of one source.
// Callers walk the configured source chain and only fail once every source
// has returned it.
var ErrSourceUnavailable = errors.New("data source unavailable")

// SourceError wraps ErrSourceUnavailable with the failing source's name.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return ErrSourceUnavailable }

// NewSourceError creates a SourceError for the given source.
func NewSourceError(source string, err error) error {
	return &SourceError{Source: source, Err: err}
}

// SummaryResult is a fetched summary batch plus the number of rows the
// extractor had to skip.
type SummaryResult struct {
	Records     []entity.DragonTigerSummary
	SkippedRows int
}

// DetailResult is a fetched per-stock detail batch plus skips.
type DetailResult struct {
	Records     []entity.DragonTigerDetail
	SkippedRows int
}

// DataSource is the capability implemented by each Dragon-Tiger variant.
// tradeDate is an ISO date (2024-12-20); implementations convert to their
// own URL conventions. An empty result with a nil error means the source had
// no data for the date, which is not a failure.
type DataSource interface {
	Name() string
	FetchSummary(ctx context.Context, tradeDate string) (*SummaryResult, error)
	FetchDetail(ctx context.Context, stockCode, tradeDate string) (*DetailResult, error)
}
