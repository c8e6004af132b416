// internal/api/middleware.go
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"rent360-leads/internal/common/auth"
	apperrors "rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// authenticate resolves the bearer token into a session. Requests without a
// valid token stop here with 401.
func authenticate(resolver auth.Resolver, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, log, apperrors.NewUnauthenticatedError("missing bearer token"), "")
				return
			}

			session, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if apperrors.HasCode(err, apperrors.ErrCodeExternalService) {
					writeError(w, r, log, err, "No fue posible validar la sesión")
					return
				}
				log.Debug("token rejected", map[string]interface{}{
					"requestId": middleware.GetReqID(r.Context()),
					"error":     err,
				})
				writeError(w, r, log, apperrors.NewUnauthenticatedError("invalid token"), "")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireCapability lets the request through only when the session's role holds c.
func requireCapability(policy *auth.AccessPolicy, c auth.Capability, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := auth.SessionFrom(r.Context())
			if session == nil {
				writeError(w, r, log, apperrors.NewUnauthenticatedError("no session"), "")
				return
			}
			if policy.Decide(session, c) != auth.Authorized {
				writeError(w, r, log, apperrors.NewForbiddenError("role "+session.Role+" lacks "+string(c)), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitPerBroker caps requests per authenticated broker per minute.
func limitPerBroker(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if s := auth.SessionFrom(r.Context()); s != nil {
				return s.UserID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, response{Error: msgRateLimited, Code: "RATE_LIMITED"})
		}),
	)
}

// instrument records latency per route pattern and logs every request.
func instrument(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

			if route == "/health" || route == "/metrics" {
				return
			}
			log.Info("http request", map[string]interface{}{
				"requestId":  middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"route":      route,
				"status":     status,
				"durationMs": elapsed.Milliseconds(),
			})
		})
	}
}
