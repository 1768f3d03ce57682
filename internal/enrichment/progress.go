package enrichment

import "time"

// Progress statuses
const (
	StatusEnriched = "enriched"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusDone     = "done"
)

// ProgressEvent reports one processed stock of a batch, or the end of the batch
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"` // enrich | prices
	Symbol    string    `json:"symbol,omitempty"`
	Status    string    `json:"status"`
	Quality   int       `json:"quality,omitempty"`
	Sources   []string  `json:"sources,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Time      time.Time `json:"time"`
}

// ProgressSink receives progress events. Publish must not block.
type ProgressSink interface {
	Publish(ProgressEvent)
}

type nopSink struct{}

func (nopSink) Publish(ProgressEvent) {}
