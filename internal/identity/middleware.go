package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/storefront/internal/models"
	"go.uber.org/zap"
)

type ctxKey struct{}

func WithActor(ctx context.Context, actor models.ActorID) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFromContext returns the actor stored by Middleware. Handlers read it
// once and pass it explicitly from there on.
func ActorFromContext(ctx context.Context) (models.ActorID, bool) {
	actor, ok := ctx.Value(ctxKey{}).(models.ActorID)
	return actor, ok && actor != ""
}

// Middleware resolves the actor once at the request boundary.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		actor, err := r.Resolve(w, req)
		if err != nil {
			status, code := http.StatusInternalServerError, "identity_unavailable"
			if errors.Is(err, ErrInvalidToken) {
				status, code = http.StatusUnauthorized, "invalid_token"
			} else {
				r.logger.Error("resolve actor failed", zap.Error(err))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
			return
		}

		next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), actor)))
	})
}
