// internal/api/middleware.go
package api

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/apiutil"
	"github.com/codr1/Courtside/internal/api/authz"
	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/models"
)

// UserIDHeader carries the caller's user id, set by the trusted auth proxy.
const UserIDHeader = "X-User-ID"

type Middleware func(http.Handler) http.Handler

type requestIDKey struct{}

func ChainMiddleware(h http.Handler, middleware ...Middleware) http.Handler {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

// RequestIDFromContext returns the id assigned by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response wrapper to capture status code
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)
		log.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

func WithRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger := log.Ctx(r.Context())
				stack := debug.Stack()
				logger.Error().
					Interface("error", err).
					Str("stack", string(stack)).
					Msg("Panic recovered")

				apiutil.WriteError(w, r, errors.New("panic recovered"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		logger := log.With().Str("request_id", requestID).Logger()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = logger.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter wrapper to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// WithOrganization resolves the {slug} path segment into the tenant and its
// effective booking settings. It must wrap a handler registered on a pattern
// that names {slug}.
func WithOrganization(queries models.OrganizationQueries, defaults config.BookingConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := strings.TrimSpace(r.PathValue("slug"))
			if slug == "" {
				apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "organization not specified"})
				return
			}

			queryCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			org, err := models.LoadOrganizationBySlug(queryCtx, queries, slug, defaults)
			if err != nil {
				if errors.Is(err, models.ErrOrganizationNotFound) {
					log.Ctx(r.Context()).Warn().Str("slug", slug).Msg("Organization not found")
					apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "organization not found", Err: err})
					return
				}
				apiutil.WriteError(w, r, err)
				return
			}

			logger := log.Ctx(r.Context()).With().Int64("organization_id", org.ID).Logger()
			ctx := authz.ContextWithOrganization(logger.WithContext(r.Context()), &org)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity resolves the X-User-ID header against the organization in the
// request context. Requests without the header continue anonymously.
func WithIdentity(queries authz.IdentityQueries) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := apiutil.ParsePositiveInt64Field(raw, UserIDHeader)
			if err != nil {
				apiutil.WriteError(w, r, authz.ErrUnauthenticated)
				return
			}
			org := authz.OrganizationFromContext(r.Context())
			if org == nil {
				apiutil.WriteError(w, r, errors.New("identity resolved outside an organization route"))
				return
			}

			user, err := authz.ResolveUser(r.Context(), queries, org.ID, userID)
			if err != nil {
				if errors.Is(err, authz.ErrUnauthenticated) {
					log.Ctx(r.Context()).Warn().Int64("user_id", userID).Msg("Unknown user")
				}
				apiutil.WriteError(w, r, err)
				return
			}

			logger := log.Ctx(r.Context()).With().Int64("user_id", user.ID).Logger()
			ctx := authz.ContextWithUser(logger.WithContext(r.Context()), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAdmin rejects callers who do not administer the organization.
func WithAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := authz.RequireAdmin(r.Context()); err != nil {
			logEvent := log.Ctx(r.Context()).Warn()
			if user := authz.UserFromContext(r.Context()); user != nil {
				logEvent = logEvent.Int64("user_id", user.ID)
			}
			logEvent.Err(err).Msg("Admin access denied")
			apiutil.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
