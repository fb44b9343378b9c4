package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shelterhub/internal/auth"
	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

type principalKey struct{}

type requestInfoKey struct{}

// requestInfo lets inner middleware report back to the request logger.
type requestInfo struct {
	actor string
}

// Principal is the authenticated staff member behind a request. Role is read
// from the user record so role changes apply to tokens already issued.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
}

// PrincipalFromContext returns the principal set by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", clientAddr(r)),
		}
		if info.actor != "" {
			fields = append(fields, zap.String("actor", info.actor))
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("request served", fields...)
			return
		}
		s.logger.Debug("request served", fields...)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.writeError(w, r, unauthorized("missing Authorization header"))
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			s.writeError(w, r, unauthorized("invalid Authorization header format"))
			return
		}
		claims, err := s.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			s.logger.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			s.writeError(w, r, unauthorized("invalid or expired token"))
			return
		}
		user, err := s.svc.GetUser(r.Context(), claims.UserID())
		if err != nil || !user.Active {
			s.writeError(w, r, unauthorized("account unavailable"))
			return
		}
		ctx := core.WithActor(r.Context(), user.ID)
		ctx = context.WithValue(ctx, principalKey{}, Principal{UserID: user.ID, Email: user.Email, Role: user.Role})
		if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
			info.actor = user.ID
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require wraps a handler with a permission check on the caller's role.
func (s *Server) require(perm auth.Permission, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeError(w, r, unauthorized("authentication required"))
			return
		}
		if !auth.Allowed(p.Role, perm) {
			s.writeError(w, r, forbidden("role "+string(p.Role)+" lacks "+string(perm)))
			return
		}
		h(w, r)
	})
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const maxTrackedClients = 10000

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxTrackedClients {
			rl.pruneLocked(now)
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) pruneLocked(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idle {
			delete(rl.limiters, key)
		}
	}
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientAddr(r)
		if !s.limiter.allow(key) {
			s.logger.Warn("rate limit exceeded",
				zap.String("client", key),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, rateLimited())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
