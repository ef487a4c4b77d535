package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	id "archivist/pkg/domain"
	request "archivist/pkg/platform/middleware/request"
	"archivist/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// SessionPolicy supplies the live session lifetime. Tokens older than it are
// refused even when their own expiry has not passed.
type SessionPolicy interface {
	SessionTimeout(ctx context.Context) (time.Duration, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	PrincipalID string
	AuthMethod  string
	IssuedAt    time.Time
	JTI         string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth authenticates the bearer token and stores the principal and
// auth method in the request context. sessions may be nil.
func RequireAuth(validator JWTValidator, sessions SessionPolicy, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			principalID, err := id.ParsePrincipalID(claims.PrincipalID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if sessions != nil {
				timeout, err := sessions.SessionTimeout(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "failed to load session policy",
						"error", err,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to validate token")
					return
				}
				if timeout > 0 && requestcontext.Now(ctx).Sub(claims.IssuedAt) > timeout {
					logger.WarnContext(ctx, "unauthorized access - session timed out",
						"principal_id", principalID,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Session has timed out")
					return
				}
			}

			ctx = requestcontext.WithPrincipalID(ctx, principalID)
			if claims.AuthMethod != "" {
				ctx = requestcontext.WithAuthMethod(ctx, claims.AuthMethod)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
