package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/daijir/scripture-habit/pkg/clientip"
)

// Mutation rate limit: per user when signed in, per IP otherwise.
// Users: 2 req/s, burst 20. Anonymous: ~10 req/min, burst 5.
// Allows bursts of reactions and read acks while blocking scripted spam.

const (
	actionUserRPS      = 2
	actionUserBurst    = 20
	actionAnonRPS      = 0.17 // ~10/min
	actionAnonBurst    = 5
	actionCleanupEvery = 5 * time.Minute
	actionLimiterTTL   = 30 * time.Minute
)

type actionLimiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

var (
	actionEntries   = make(map[string]*actionLimiterEntry)
	actionEntriesMu sync.Mutex
	actionCleanup   bool
)

func getActionLimiter(key string, authenticated bool) *rate.Limiter {
	actionEntriesMu.Lock()
	defer actionEntriesMu.Unlock()
	startActionCleanupOnce()

	e, ok := actionEntries[key]
	if !ok {
		if authenticated {
			e = &actionLimiterEntry{limiter: rate.NewLimiter(rate.Limit(actionUserRPS), actionUserBurst)}
		} else {
			e = &actionLimiterEntry{limiter: rate.NewLimiter(rate.Limit(actionAnonRPS), actionAnonBurst)}
		}
		actionEntries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func startActionCleanupOnce() {
	if actionCleanup {
		return
	}
	actionCleanup = true
	go func() {
		ticker := time.NewTicker(actionCleanupEvery)
		defer ticker.Stop()
		for range ticker.C {
			actionEntriesMu.Lock()
			now := time.Now()
			for k, e := range actionEntries {
				if now.Sub(e.lastUse) > actionLimiterTTL {
					delete(actionEntries, k)
				}
			}
			actionEntriesMu.Unlock()
		}
	}()
}

// ActionRateLimit limits write requests (POST, PUT, DELETE). Reads pass
// through. Use after RequireUser so signed-in users are keyed by id.
func ActionRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		uid := UserID(r.Context())
		key, limit := "anon:"+clientip.RealClientIP(r), actionAnonBurst
		if uid != "" {
			key, limit = "user:"+uid, actionUserBurst
		}
		limiter := getActionLimiter(key, uid != "")

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many actions. Please slow down."}`))
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		next.ServeHTTP(w, r)
	})
}
