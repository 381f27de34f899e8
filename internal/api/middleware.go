package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/org/vaultgate/internal/credential"
	"github.com/rs/zerolog/log"
)

// requestIDMiddleware attaches a UUID request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := withRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware is the authentication gate. It turns an inbound bearer
// value into an attached credential or a rejection. All rejection causes —
// zero issued credentials, missing or malformed header, no matching secret —
// produce the same response, so a caller learns nothing about which stage
// failed or which credentials exist. Per-path authorization is not done
// here; handlers consult the access gate after authentication.
func authMiddleware(creds *credential.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fail closed: with no issued credentials there is no open mode.
			if creds.Len() == 0 {
				rejectUnauthorized(w)
				return
			}

			secret, ok := bearerValue(r.Header.Get("Authorization"))
			if !ok {
				rejectUnauthorized(w)
				return
			}

			c := creds.FindBySecret(secret)
			if c == nil {
				log.Debug().Str("fingerprint", credential.Fingerprint(secret)).Msg("bearer secret did not match any credential")
				rejectUnauthorized(w)
				return
			}

			creds.Touch(r.Context(), c)

			ctx := withCredential(r.Context(), c)
			ctx = withCallerMeta(ctx, callerMeta{
				Addr:      clientAddr(r),
				UserAgent: r.Header.Get("User-Agent"),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectUnauthorized(w http.ResponseWriter) {
	authRejectionsTotal.Inc()
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// bearerValue extracts the secret from an "Authorization: Bearer <value>"
// header. The scheme comparison is case-insensitive per RFC 7235.
func bearerValue(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	value := strings.TrimSpace(parts[1])
	if value == "" {
		return "", false
	}
	return value, true
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// responseRecorder captures the status code for metrics and activity
// recording.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// rateLimiter is a per-address token bucket. It sits in front of the
// authentication gate so secret-guessing costs the caller throughput before
// it costs the server a credential scan.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int // requests per second
	burst   int
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

func newRateLimiter(rps, burst int) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rps,
		burst:   burst,
	}
}

func (rl *rateLimiter) allow(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[addr]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastCheck: time.Now()}
		rl.buckets[addr] = b
	}
	now := time.Now()
	elapsed := now.Sub(b.lastCheck).Seconds()
	b.tokens += elapsed * float64(rl.rate)
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastCheck = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clientAddr(r)
		if !rl.allow(addr) {
			log.Warn().Str("addr", addr).Msg("rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
