package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paltransport.org/internal/audit"
	"paltransport.org/internal/ids"
	"paltransport.org/internal/obs"
	"paltransport.org/internal/ratelimit"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// requestID assigns each request an identifier, echoes it in the response
// and threads it through the context for log and audit correlation.
func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = ids.New()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), rid)))
	})
}

// logging: method, path, status, duration per request.
func (a *API) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.Info("http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   clientIP(r),
			"request_id":  audit.RequestIDFromContext(r.Context()),
		})
	})
}

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// rateLimit admits or rejects the request against the per-class budget.
// Budget headers go on every limited response so clients can pace
// themselves before hitting 429.
func (a *API) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ratelimit.Bypass(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		class := ratelimit.Classify(r.Method, r.URL.Path)
		ip := clientIP(r)
		d := a.limiter.Allow(class, ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.OK {
			retryAfter := int(d.RetryAfter / time.Second)
			if d.RetryAfter%time.Second != 0 || retryAfter == 0 {
				retryAfter++
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			obs.RateLimitRejected(string(class))
			a.record(r, audit.Event{
				Type:     audit.EventRateLimitExceeded,
				ClientIP: ip,
				Status:   http.StatusTooManyRequests,
				Details:  map[string]any{"class": string(class), "limit": d.Limit},
			})
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":      "rate_limit_exceeded",
				"message":    fmt.Sprintf("too many requests, retry in %d seconds", retryAfter),
				"retryAfter": retryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes caps the request body size.
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the caller address behind proxies: first entry of
// X-Forwarded-For, then X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *API) record(r *http.Request, e audit.Event) {
	if a.audit == nil {
		return
	}
	if e.ClientIP == "" {
		e.ClientIP = clientIP(r)
	}
	if e.UserAgent == "" {
		e.UserAgent = r.UserAgent()
	}
	if e.Method == "" {
		e.Method = r.Method
	}
	if e.Path == "" {
		e.Path = r.URL.Path
	}
	a.audit.Record(r.Context(), e)
}
