package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/daijir/scripture-habit/pkg/clientip"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerReferrerPolicy          = "Referrer-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerReferrerPolicy, "no-referrer")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// --- Session creation rate limiting (1 req/5s, burst 3) ---

var (
	sessionEntries    = make(map[string]*actionLimiterEntry)
	sessionEntriesMu  sync.Mutex
	sessionCleanupRun bool
)

const (
	sessionRateLimitEvery  = 5 * time.Second
	sessionRateLimitBurst  = 3
	sessionCleanupInterval = 5 * time.Minute
	sessionLimiterTTL      = 30 * time.Minute
)

func getSessionLimiter(ip string) *rate.Limiter {
	sessionEntriesMu.Lock()
	defer sessionEntriesMu.Unlock()
	startSessionCleanupOnce()
	e, ok := sessionEntries[ip]
	if !ok {
		e = &actionLimiterEntry{limiter: rate.NewLimiter(rate.Every(sessionRateLimitEvery), sessionRateLimitBurst)}
		sessionEntries[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func startSessionCleanupOnce() {
	if sessionCleanupRun {
		return
	}
	sessionCleanupRun = true
	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			sessionEntriesMu.Lock()
			now := time.Now()
			for ip, e := range sessionEntries {
				if now.Sub(e.lastUse) > sessionLimiterTTL {
					delete(sessionEntries, ip)
				}
			}
			sessionEntriesMu.Unlock()
		}
	}()
}

// SessionRateLimit applies a stricter per-IP limit to session creation.
func SessionRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if !getSessionLimiter(clientip.RealClientIP(r)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many sign-in attempts. Please try again later."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
