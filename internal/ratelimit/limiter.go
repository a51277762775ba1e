package ratelimit

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"
)

// Subject identifies who is being counted. Key precedence is user id,
// then API-key id, then client IP, so authenticated traffic never shares
// a bucket with anonymous traffic behind the same NAT.
type Subject struct {
	UserID string
	KeyID  string
	IP     string
	Plan   string
}

func (s Subject) key() string {
	switch {
	case s.UserID != "":
		return "u:" + s.UserID
	case s.KeyID != "":
		return "k:" + s.KeyID
	default:
		return "ip:" + s.IP
	}
}

// Result is one rate-limit decision.
type Result struct {
	Allowed    bool
	Limit      int64
	Count      int64
	Remaining  int64
	Reset      time.Time
	RetryAfter time.Duration
	// FailedOpen is set when the counter store was unreachable and the
	// request was allowed without a decision.
	FailedOpen bool
}

type routeQuota struct {
	prefix string
	limit  int
}

// Limiter enforces fixed-window quotas per (subject, route). Quotas come
// from a longest-prefix route table scaled by a per-plan multiplier.
// Store failures fail open: availability wins over strict enforcement
// here, unlike the evaluator's fail-closed posture.
type Limiter struct {
	store        CounterStore
	window       time.Duration
	defaultLimit int
	routes       []routeQuota
	plans        map[string]float64
	now          func() time.Time
}

func NewLimiter(store CounterStore, window time.Duration, defaultLimit int, routes map[string]int, plans map[string]float64) *Limiter {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	rq := make([]routeQuota, 0, len(routes))
	for prefix, limit := range routes {
		rq = append(rq, routeQuota{prefix: prefix, limit: limit})
	}
	// longest prefix first, so the first match is the most specific
	sort.Slice(rq, func(i, j int) bool { return len(rq[i].prefix) > len(rq[j].prefix) })
	return &Limiter{
		store:        store,
		window:       window,
		defaultLimit: defaultLimit,
		routes:       rq,
		plans:        plans,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check counts this request and decides. Denials carry RetryAfter, the
// seconds until the window resets, for client backoff.
func (l *Limiter) Check(ctx context.Context, subject Subject, path string) Result {
	now := l.now()
	limit := l.quotaFor(path, subject.Plan)
	key := subject.key() + "|" + normalizePath(path)

	count, reset, err := l.store.Incr(ctx, key, l.window, now)
	if err != nil {
		log.Printf("ratelimit: counter store failed, allowing request: %v", err)
		return Result{Allowed: true, Limit: limit, FailedOpen: true}
	}

	res := Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Count:     count,
		Remaining: max64(limit-count, 0),
		Reset:     reset,
	}
	if !res.Allowed {
		retry := reset.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		res.RetryAfter = retry
	}
	return res
}

// quotaFor resolves the route quota (longest configured prefix wins,
// global default otherwise) and scales it by the plan multiplier.
func (l *Limiter) quotaFor(path string, plan string) int64 {
	limit := l.defaultLimit
	for _, rq := range l.routes {
		if strings.HasPrefix(path, rq.prefix) {
			limit = rq.limit
			break
		}
	}
	if m, ok := l.plans[plan]; ok && m > 0 {
		limit = int(float64(limit) * m)
	}
	if limit < 1 {
		limit = 1
	}
	return int64(limit)
}

// Window exposes the configured window size for response headers.
func (l *Limiter) Window() time.Duration { return l.window }

func normalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
