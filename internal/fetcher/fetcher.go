// Package fetcher implements C6: an asynchronous HTTP GET capability,
// the sole suspension point of the authentication pipeline. It wraps
// each outbound call with a per-host circuit breaker and rate limiter;
// both change only whether a dispatch is attempted, never whether a
// completed fetch's result is retried.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/haloedge/authcore/internal/observability"
)

// Continuation is invoked exactly once when a Get completes, whether
// that is success, an HTTP-level failure, or a dispatch failure (breaker
// open, rate limited, context cancelled).
type Continuation func(status int, body []byte, err error)

// HttpFetcher is C6's operation surface.
type HttpFetcher interface {
	// Get dispatches an asynchronous GET to url and returns immediately;
	// continuation fires exactly once on completion.
	Get(ctx context.Context, kind, url string, continuation Continuation)
}

// Config controls the concrete fetcher's resilience behaviour.
type Config struct {
	Timeout             time.Duration
	MaxBodyBytes        int64
	RateLimitPerSecond  float64
	RateLimitBurst      int
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
}

// DefaultConfig returns reasonable defaults for the fetcher's resilience
// knobs: a 5s timeout, 1MB body cap, 5 req/s per issuer host, and a
// breaker that opens once failures reach 60% of at least 5 requests.
func DefaultConfig() Config {
	return Config{
		Timeout:             5 * time.Second,
		MaxBodyBytes:        1 << 20,
		RateLimitPerSecond:  5,
		RateLimitBurst:      10,
		BreakerMaxRequests:  1,
		BreakerInterval:     60 * time.Second,
		BreakerTimeout:      30 * time.Second,
		BreakerFailureRatio: 0.6,
	}
}

type hostGuard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// httpFetcher is the concrete HttpFetcher backed by net/http, gobreaker,
// and x/time/rate.
type httpFetcher struct {
	client *http.Client
	cfg    Config
	logger observability.Logger

	mu    sync.Mutex
	hosts map[string]*hostGuard
}

// New builds the concrete HttpFetcher.
func New(cfg Config, logger observability.Logger) HttpFetcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &httpFetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
		hosts:  make(map[string]*hostGuard),
	}
}

func (f *httpFetcher) guardFor(host string) *hostGuard {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.hosts[host]; ok {
		return g
	}

	g := &hostGuard{
		limiter: rate.NewLimiter(rate.Limit(f.cfg.RateLimitPerSecond), f.cfg.RateLimitBurst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: f.cfg.BreakerMaxRequests,
			Interval:    f.cfg.BreakerInterval,
			Timeout:     f.cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 5 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= f.cfg.BreakerFailureRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.GetMetrics().BreakerState.WithLabelValues(name).Set(float64(to))
				f.logger.Warn("circuit breaker state change",
					observability.String("host", name),
					observability.String("from", from.String()),
					observability.String("to", to.String()))
			},
		}),
	}
	f.hosts[host] = g
	return g
}

func (f *httpFetcher) Get(ctx context.Context, kind, url string, continuation Continuation) {
	go f.dispatch(ctx, kind, url, continuation)
}

func (f *httpFetcher) dispatch(ctx context.Context, kind, url string, continuation Continuation) {
	start := time.Now()
	host := hostOf(url)
	guard := f.guardFor(host)

	if !guard.limiter.Allow() {
		observability.GetMetrics().FetchTotal.WithLabelValues(kind, "rate_limited").Inc()
		continuation(0, nil, ErrRateLimited)
		return
	}

	result, err := guard.breaker.Execute(func() (interface{}, error) {
		return f.doRequest(ctx, url)
	})

	observability.GetMetrics().FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.GetMetrics().FetchTotal.WithLabelValues(kind, "error").Inc()
		continuation(0, nil, err)
		return
	}

	res := result.(fetchResult)
	observability.GetMetrics().FetchTotal.WithLabelValues(kind, "ok").Inc()
	continuation(res.status, res.body, nil)
}

type fetchResult struct {
	status int
	body   []byte
}

func (f *httpFetcher) doRequest(ctx context.Context, url string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, f.cfg.MaxBodyBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fetchResult{}, err
	}

	return fetchResult{status: resp.StatusCode, body: body}, nil
}

var _ HttpFetcher = (*httpFetcher)(nil)
