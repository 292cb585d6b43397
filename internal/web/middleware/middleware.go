package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/damaro/courier/internal/web/db"
)

type contextKey string

const tenantKey contextKey = "tenant"

// TenantID returns the authenticated tenant for the request, or ""
func TenantID(r *http.Request) string {
	if v, ok := r.Context().Value(tenantKey).(string); ok {
		return v
	}
	return ""
}

// WithTenant returns a request context carrying the tenant id. Exposed
// for handler tests.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// Auth resolves the session cookie to a tenant id and injects it into
// the request context. Requests without a valid session get 401.
func Auth(database *db.DB, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("session")
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var username string
			var expiresAt time.Time
			err = database.QueryRow(
				"SELECT username, expires_at FROM sessions WHERE id = ?",
				cookie.Value,
			).Scan(&username, &expiresAt)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if time.Now().After(expiresAt) {
				database.Exec("DELETE FROM sessions WHERE id = ?", cookie.Value)
				http.Error(w, "session expired", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), username)))
		})
	}
}

// Logger logs each request with method, path, status and duration
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
