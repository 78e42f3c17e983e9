package httpadapter

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// trafficMetrics is implemented by the metrics registry; nil disables the
// rejection counters.
type trafficMetrics interface {
	RecordRateLimited()
	RecordShedded()
}

func isExemptPath(path string) bool {
	return path == "/healthz" || path == "/metrics" || strings.HasPrefix(path, "/metrics/")
}

// rateLimitMiddleware applies a global token bucket to the API surface.
// Health and metrics probes pass through so operators can always see in.
func rateLimitMiddleware(next http.Handler, rps, burst int, metrics trafficMetrics) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = rps
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isExemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.Allow() {
			if metrics != nil {
				metrics.RecordRateLimited()
			}
			retryAfter := int(math.Ceil(1.0 / float64(rps)))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware caps concurrent in-flight requests; a request that
// cannot get a slot within wait is shed with 503 instead of queuing behind a
// slow generation call.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration, metrics trafficMetrics) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isExemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			if metrics != nil {
				metrics.RecordShedded()
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server overloaded, try again later"})
		case <-r.Context().Done():
		}
	})
}
