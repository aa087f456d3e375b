package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"labelcheck/pkg/domain"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/httputil"
	"labelcheck/pkg/requestcontext"
)

// Header names trusted when token authentication is disabled.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// TokenValidator resolves a bearer token to an actor.
type TokenValidator interface {
	ValidateToken(tokenString string) (domain.Actor, error)
}

// RequireActor authenticates the bearer token and stores the actor in the
// request context. Requests without a valid token get a 401 envelope.
func RequireActor(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			actor, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}

// TrustHeaders builds the actor from X-Actor-ID and X-Actor-Role. Local
// development only; the role defaults to officer.
func TrustHeaders(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if id == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing "+HeaderActorID+" header"))
				return
			}
			role := domain.RoleOfficer
			if raw := r.Header.Get(HeaderActorRole); raw != "" {
				parsed, err := domain.ParseRole(raw)
				if err != nil {
					logger.WarnContext(ctx, "unauthorized access - unknown role",
						"request_id", requestcontext.RequestID(ctx),
						"role", raw,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown actor role"))
					return
				}
				role = parsed
			}
			actor := domain.Actor{ID: id, Role: role}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
