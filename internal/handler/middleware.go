package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	ownerKey ctxKey = iota
	accessTokenKey
)

// AuthMiddleware resolves the owner from the Supabase access token in the
// Authorization header. Requests without a valid session get a 401 and
// never reach the handler.
func AuthMiddleware(verifier *service.TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err == nil {
				var ownerID string
				if ownerID, err = verifier.Verify(token); err == nil {
					trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("owner.id", ownerID))
					ctx := context.WithValue(WithOwnerID(r.Context(), ownerID), accessTokenKey, token)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			handleServiceError(w, err, logger.With(
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", &domain.ErrNotAuthenticated{Reason: "missing bearer token"}
	}
	scheme, token, ok := strings.Cut(h, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", &domain.ErrNotAuthenticated{Reason: "malformed authorization header"}
	}
	return token, nil
}

// WithOwnerID returns a copy of ctx carrying the authenticated owner id.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// OwnerIDFromContext returns the owner id set by AuthMiddleware, or "".
func OwnerIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ownerKey).(string)
	return v
}

// AccessTokenFromContext returns the bearer token verified by
// AuthMiddleware, or "".
func AccessTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accessTokenKey).(string)
	return v
}
