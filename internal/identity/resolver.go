// Package identity maps inbound requests to the ActorID that owns their cart.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Merger folds a guest cart into a user cart.
type Merger interface {
	Merge(ctx context.Context, guest, user models.ActorID) (int, error)
}

type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// Resolver decides who a request acts for. An authenticated user always wins;
// otherwise the guest cookie is used, and minted when absent. Resolving an
// authenticated request that still carries a guest cookie merges that guest
// cart into the user's and clears the cookie.
type Resolver struct {
	auth   Authenticator
	merger Merger
	cookie CookieConfig
	sfg    singleflight.Group
	logger *zap.Logger
}

// NewResolver accepts a nil auth, in which case every request is a guest.
func NewResolver(auth Authenticator, merger Merger, cookie CookieConfig, logger *zap.Logger) *Resolver {
	if cookie.Name == "" {
		cookie.Name = "guest_id"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = 365 * 24 * time.Hour
	}
	return &Resolver{
		auth:   auth,
		merger: merger,
		cookie: cookie,
		logger: observability.OrNop(logger),
	}
}

// Resolve may write a Set-Cookie header: minting a guest identity on a
// read is expected.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) (models.ActorID, error) {
	guest, hasGuest := r.guestFromCookie(req)

	if r.auth != nil {
		userID, ok, err := r.auth.Authenticate(req)
		if err != nil {
			return "", err
		}
		if ok {
			user := models.UserActor(userID)
			if hasGuest {
				if err := r.MergeOnLogin(req.Context(), w, guest, user); err != nil {
					return "", err
				}
			}
			return user, nil
		}
	}

	if hasGuest {
		return guest, nil
	}

	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(r.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return models.GuestActor(token), nil
}

// mergeTimeout bounds a shared merge once it is detached from the caller.
const mergeTimeout = 10 * time.Second

// MergeOnLogin moves the guest cart into the user cart and clears the guest
// cookie. Concurrent calls for the same pair share one merge, detached from
// any single caller's cancellation; the store lock makes any later repeat a
// no-op.
func (r *Resolver) MergeOnLogin(ctx context.Context, w http.ResponseWriter, guest, user models.ActorID) error {
	key := guest.String() + "|" + user.String()
	ch := r.sfg.DoChan(key, func() (interface{}, error) {
		mergeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mergeTimeout)
		defer cancel()
		return r.merger.Merge(mergeCtx, guest, user)
	})

	var err error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		err = res.Err
	}
	if err != nil {
		r.logger.Error("guest cart merge failed",
			zap.String("guest_id", guest.String()),
			zap.String("actor_id", user.String()),
			zap.Error(err))
		return fmt.Errorf("merge guest cart: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     r.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (r *Resolver) guestFromCookie(req *http.Request) (models.ActorID, bool) {
	c, err := req.Cookie(r.cookie.Name)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return models.GuestActor(c.Value), true
}
