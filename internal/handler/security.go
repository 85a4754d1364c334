package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/session"
)

type userIDKey struct{}

// UserIDFromContext returns the authenticated user id stored by
// RequireSession.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// RequireSession rejects requests without a live session cookie with 401
// before they reach the wrapped handler.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.resolveSession(r)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				writeMessage(w, http.StatusUnauthorized, "You must be logged in to do that.")
				return
			}
			zctx.From(r.Context()).Error("Resolve session", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Internal server error.")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, s.UserID)
		ctx = zctx.With(ctx, zap.Int64("user_id", s.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) resolveSession(r *http.Request) (*session.Session, error) {
	c, err := r.Cookie(h.cookieName)
	if err != nil {
		return nil, session.ErrNotFound
	}
	return h.sessions.Resolve(r.Context(), c.Value)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(expires.Sub(h.now()).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
