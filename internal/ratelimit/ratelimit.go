package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

const unknownClient = "unknown"

type key struct {
	ip    string
	route string
}

// bucket is one fixed window. Fields are guarded by Limiter.mu.
type bucket struct {
	windowStart time.Time
	window      time.Duration
	limit       int
	count       int
	// logged is set on the first denial of the current window
	logged bool
}

func (b *bucket) expired(now time.Time) bool {
	return !now.Before(b.windowStart.Add(b.window))
}

// Limiter tracks fixed-window counters per (client, route).
type Limiter struct {
	mu         sync.Mutex
	buckets    map[key]*bucket
	overrides  map[string]Quota
	now        func() time.Time
	maxKeys    int
	sweepEvery time.Duration
	atCapacity bool

	logger       log.Logger
	capacityWarn rate.Sometimes

	// OnDenied runs on every rejected request (metrics).
	OnDenied func(ip, route string)
	// OnFirstDenied runs once per bucket window, on its first rejection
	// (logging). ctx is the rejected request's context.
	OnFirstDenied func(ctx context.Context, ip, route string)
	// OnCapacity runs when the key cap is first hit, and again only after
	// space has been freed and the cap is hit anew.
	OnCapacity func()
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMaxKeys caps tracked (client, route) pairs. 0 disables the cap.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) { l.maxKeys = n }
}

// WithSweepInterval sets how often expired buckets are removed.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

// WithQuotas overrides the quota passed to Limit for the named routes.
func WithQuotas(q map[string]Quota) Option {
	return func(l *Limiter) {
		for route, quota := range q {
			l.overrides[route] = quota
		}
	}
}

func WithLogger(L log.Logger) Option {
	return func(l *Limiter) { l.logger = L }
}

func WithOnDenied(fn func(ip, route string)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

func WithOnFirstDenied(fn func(ctx context.Context, ip, route string)) Option {
	return func(l *Limiter) { l.OnFirstDenied = fn }
}

func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) { l.OnCapacity = fn }
}

// New builds a Limiter and starts its sweep goroutine, which stops when ctx
// is cancelled.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:      make(map[key]*bucket),
		overrides:    make(map[string]Quota),
		now:          time.Now,
		maxKeys:      100_000,
		sweepEvery:   time.Minute,
		logger:       log.Nop(),
		capacityWarn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, o := range opts {
		o(l)
	}
	if l.sweepEvery > 0 {
		go l.sweepLoop(ctx)
	}
	return l
}

// QuotaFor returns the effective quota for route.
func (l *Limiter) QuotaFor(route string, def Quota) Quota {
	if q, ok := l.overrides[route]; ok {
		return q
	}
	return def
}

// decision is the outcome of one allow call.
type decision struct {
	allowed    bool
	retryAfter time.Duration
	firstDeny  bool
	capacity   bool
	newlyFull  bool
}

func (l *Limiter) allow(ip, route string, q Quota) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{ip: ip, route: route}
	b, ok := l.buckets[k]
	switch {
	case ok && b.expired(now):
		b.windowStart, b.count, b.logged = now, 0, false
		b.limit, b.window = q.Limit, q.Window
	case !ok:
		if l.maxKeys > 0 && len(l.buckets) >= l.maxKeys {
			l.sweepLocked(now)
		}
		if l.maxKeys > 0 && len(l.buckets) >= l.maxKeys {
			newly := !l.atCapacity
			l.atCapacity = true
			return decision{retryAfter: q.Window, capacity: true, newlyFull: newly}
		}
		b = &bucket{windowStart: now, window: q.Window, limit: q.Limit}
		l.buckets[k] = b
	}

	b.count++
	if b.count <= b.limit {
		return decision{allowed: true}
	}
	first := !b.logged
	b.logged = true
	return decision{retryAfter: b.windowStart.Add(b.window).Sub(now), firstDeny: first}
}

// sweepLocked drops expired buckets. l.mu must be held.
func (l *Limiter) sweepLocked(now time.Time) int {
	n := 0
	for k, b := range l.buckets {
		if b.expired(now) {
			delete(l.buckets, k)
			n++
		}
	}
	if n > 0 && len(l.buckets) < l.maxKeys {
		l.atCapacity = false
	}
	return n
}

func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	t := time.NewTicker(l.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep()
		}
	}
}

// Len reports the number of tracked (client, route) pairs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Limit returns middleware enforcing q (or its configured override) for
// route. Rejected requests get 429 with Retry-After and never reach next.
func (l *Limiter) Limit(route string, q Quota) func(http.Handler) http.Handler {
	q = l.QuotaFor(route, q)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientKey(r)
			d := l.allow(ip, route, q)
			if d.allowed {
				next.ServeHTTP(w, r)
				return
			}

			if d.capacity {
				if d.newlyFull && l.OnCapacity != nil {
					l.OnCapacity()
				}
				l.capacityWarn.Do(func() {
					l.logger.Warn(r.Context(), "rate limiter at capacity, rejecting new clients",
						"max_keys", l.maxKeys, "route", route)
				})
			} else if d.firstDeny && l.OnFirstDenied != nil {
				l.OnFirstDenied(r.Context(), ip, route)
			}
			if l.OnDenied != nil {
				l.OnDenied(ip, route)
			}
			apierr.Write(w, r, apierr.NewRateLimited(d.retryAfter))
		})
	}
}

func clientKey(r *http.Request) string {
	ctx := r.Context()
	if ip := httpmw.ClientIPFromContext(ctx); ip != "" {
		return ip
	}
	if info, ok := reqctx.From(ctx); ok && info.ClientIP != "" {
		return info.ClientIP
	}
	return unknownClient
}
