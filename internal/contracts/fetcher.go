package contracts

import (
	"context"
	"time"
)

// SourceFetcher wraps one external data provider
// ⭐ SSOT: provider 인터페이스
//
// Fetch never returns an error: I/O, parse and schema problems are logged
// inside the fetcher and reported as (nil, false).
type SourceFetcher interface {
	// Name is the provider name recorded in sources_used ("NSE", "YahooFinance", ...)
	Name() string

	// Available reports whether the provider is configured in this deployment.
	// An unavailable fetcher is skipped without being counted as a failure.
	Available() bool

	Fetch(ctx context.Context, symbol string, required []string) (FieldBag, bool)
}

// FetchAttempt records one fetcher that returned data during a fusion pass
type FetchAttempt struct {
	Source  string   `json:"source"`
	Quality int      `json:"quality"`
	Missing []string `json:"missing"`
}

// QualityReport describes a fused result
type QualityReport struct {
	Symbol        string         `json:"symbol"`
	Score         int            `json:"score"`
	MissingFields []string       `json:"missing_fields"`
	SourcesUsed   []string       `json:"sources_used"`
	FetchAttempts []FetchAttempt `json:"fetch_attempts"`
	Cached        bool           `json:"cached"`
	FetchedAt     time.Time      `json:"fetched_at"`
}

// StockListProvider supplies the inbound universe for Populate
type StockListProvider interface {
	Name() string
	List(ctx context.Context) ([]StockIdentity, error)
}
