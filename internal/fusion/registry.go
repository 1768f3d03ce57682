package fusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/breaker"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/metrics"
)

// Registry is the ordered set of source fetchers, built once at startup.
// Order is priority: earlier fetchers win merge ties.
// ⭐ SSOT: provider 우선순위는 Registry 순서로만 결정
type Registry struct {
	fetchers []contracts.SourceFetcher
}

// NewRegistry creates a registry. nil fetchers are dropped.
func NewRegistry(fetchers ...contracts.SourceFetcher) *Registry {
	r := &Registry{}
	for _, f := range fetchers {
		if f != nil {
			r.fetchers = append(r.fetchers, f)
		}
	}
	return r
}

// Fetchers returns every registered fetcher in priority order
func (r *Registry) Fetchers() []contracts.SourceFetcher {
	out := make([]contracts.SourceFetcher, len(r.fetchers))
	copy(out, r.fetchers)
	return out
}

// Available returns the names of the fetchers configured in this deployment
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		if f.Available() {
			names = append(names, f.Name())
		}
	}
	return names
}

// Len returns the number of registered fetchers
func (r *Registry) Len() int {
	return len(r.fetchers)
}

// GuardOptions configures Guard
type GuardOptions struct {
	Breaker *breaker.Breaker
	Metrics *metrics.Registry
	Timeout time.Duration // 0 = caller's deadline only
}

var errNoData = errors.New("no data")

// guarded wraps a fetcher with a circuit breaker, a per-call timeout,
// panic recovery and metrics. It still reports failures only as absent.
type guarded struct {
	inner contracts.SourceFetcher
	opts  GuardOptions
	log   *logger.Logger
}

// Guard wraps f so that an open breaker short-circuits to absent without a network call
func Guard(f contracts.SourceFetcher, opts GuardOptions, log *logger.Logger) contracts.SourceFetcher {
	return &guarded{
		inner: f,
		opts:  opts,
		log:   log.Module("fusion").WithField("source", f.Name()),
	}
}

func (g *guarded) Name() string    { return g.inner.Name() }
func (g *guarded) Available() bool { return g.inner.Available() }

func (g *guarded) Fetch(ctx context.Context, symbol string, required []string) (bag contracts.FieldBag, ok bool) {
	start := time.Now()
	result := "ok"
	defer func() {
		g.opts.Metrics.ObserveFetch(g.inner.Name(), result, time.Since(start))
	}()

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	call := func() (interface{}, error) {
		return g.safeFetch(ctx, symbol, required)
	}

	var (
		res interface{}
		err error
	)
	if g.opts.Breaker != nil {
		res, err = g.opts.Breaker.Execute(call)
	} else {
		res, err = call()
	}

	switch {
	case errors.Is(err, breaker.ErrOpen):
		result = "open"
		g.log.WithField("symbol", symbol).Debug("Provider circuit open, skipping")
		return nil, false
	case err != nil:
		result = "empty"
		return nil, false
	}

	return res.(contracts.FieldBag), true
}

// safeFetch converts an absent result or a panic into an error for the breaker
func (g *guarded) safeFetch(ctx context.Context, symbol string, required []string) (bag contracts.FieldBag, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.log.WithFields(map[string]interface{}{
				"symbol": symbol,
				"panic":  fmt.Sprint(r),
			}).Warn("Provider panicked")
			bag, err = nil, fmt.Errorf("provider panic: %v", r)
		}
	}()

	out, ok := g.inner.Fetch(ctx, symbol, required)
	if !ok || len(out) == 0 {
		return nil, errNoData
	}
	return out, nil
}
