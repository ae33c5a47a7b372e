package api

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/metrics"
)

// maxTrackedKeys bounds the per-key limiter maps. Past it, the stalest
// entries are evicted; their buckets simply start full again.
const maxTrackedKeys = 10000

// KeyedLimiter is a token-bucket limiter per string key: burst of `limit`
// tokens refilled evenly over `window`.
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   int
	window  time.Duration

	mRejected *metrics.Counter
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewKeyedLimiter(name string, limit int, window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		entries:   map[string]*limiterEntry{},
		limit:     limit,
		window:    window,
		mRejected: metrics.Default.Counter("ratelimit_"+name+"_rejected_total", "Requests rejected by the "+name+" rate limit"),
	}
}

// Allow consumes one token for the key. When exhausted it returns false and
// the whole seconds to wait before retrying (at least 1).
func (k *KeyedLimiter) Allow(key string) (bool, int) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		if len(k.entries) >= maxTrackedKeys {
			k.evictStaleLocked()
		}
		e = &limiterEntry{lim: rate.NewLimiter(rate.Every(k.window/time.Duration(k.limit)), k.limit)}
		k.entries[key] = e
	}
	e.lastSeen = time.Now()
	k.mu.Unlock()

	res := e.lim.Reserve()
	if !res.OK() {
		k.mRejected.Inc(1)
		return false, int(k.window.Seconds())
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		k.mRejected.Inc(1)
		return false, int(math.Ceil(d.Seconds()))
	}
	return true, 0
}

// Apply replaces the limit and window. Tracked buckets are reset so the new
// settings take effect immediately rather than draining old reservations.
func (k *KeyedLimiter) Apply(limit int, window time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if limit == k.limit && window == k.window {
		return
	}
	k.limit = limit
	k.window = window
	k.entries = map[string]*limiterEntry{}
}

// evictStaleLocked removes the oldest half of the tracked keys.
func (k *KeyedLimiter) evictStaleLocked() {
	cutoff := time.Now().Add(-k.window)
	for key, e := range k.entries {
		if e.lastSeen.Before(cutoff) {
			delete(k.entries, key)
		}
	}
	// still crowded: drop arbitrary entries rather than grow unbounded
	for key := range k.entries {
		if len(k.entries) < maxTrackedKeys/2 {
			break
		}
		delete(k.entries, key)
	}
}

// RateLimits bundles the boundary's three limiters.
type RateLimits struct {
	CheckIn *KeyedLimiter // per user|queueId
	Notify  *KeyedLimiter // per queueId
	General *KeyedLimiter // per user
}

func NewRateLimits(checkInLimit int, checkInWindow time.Duration, notifyLimit int, notifyWindow time.Duration, generalLimit int, generalWindow time.Duration) *RateLimits {
	return &RateLimits{
		CheckIn: NewKeyedLimiter("checkin", checkInLimit, checkInWindow),
		Notify:  NewKeyedLimiter("notify", notifyLimit, notifyWindow),
		General: NewKeyedLimiter("general", generalLimit, generalWindow),
	}
}

// Apply pushes reloaded settings into all three limiters.
func (rl *RateLimits) Apply(checkInLimit int, checkInWindow time.Duration, notifyLimit int, notifyWindow time.Duration, generalLimit int, generalWindow time.Duration) {
	rl.CheckIn.Apply(checkInLimit, checkInWindow)
	rl.Notify.Apply(notifyLimit, notifyWindow)
	rl.General.Apply(generalLimit, generalWindow)
}

// rateLimited builds the 429 error carrying retryAfter.
func rateLimited(op string, retryAfter int) *errs.Error {
	return errs.NewUser(errs.CodeRateLimitExceeded, op, "rate limit exhausted",
		"too many requests, slow down", nil).
		WithDetail("retryAfter", retryAfter)
}

// GeneralMiddleware applies the per-user general limit to every request.
func (rl *RateLimits) GeneralMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := PrincipalFromContext(r.Context())
		if ok {
			if allowed, retryAfter := rl.General.Allow(userID); !allowed {
				writeError(w, rateLimited("api.ratelimit", retryAfter))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
