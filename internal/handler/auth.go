package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/user"
)

type credentials struct {
	Email    string
	Password string
}

func decodeCredentials(d *jx.Decoder) (credentials, error) {
	var c credentials
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			c.Email, err = d.Str()
		case "password":
			c.Password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return c, err
	}
	return c, ensureEOF(d)
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(u.ID) })
		e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
	})
}

// Register creates an account and logs the new user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creds, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	u, err := h.users.Register(ctx, creds.Email, creds.Password)
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		writeMessage(w, http.StatusBadRequest, "User with that email already exists.")
		return
	case errors.Is(err, user.ErrInvalidEmail), errors.Is(err, user.ErrInvalidPassword):
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		zctx.From(ctx).Error("Register user", zap.Error(err))
		writeFailure(w, "Error registering user.", err)
		return
	}

	if !h.startSession(w, r, u.ID) {
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeUser(e, u) })
}

// Login authenticates by email and password and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creds, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	u, err := h.users.Authenticate(ctx, creds.Email, creds.Password)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	case err != nil:
		zctx.From(ctx).Error("Authenticate user", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	if !h.startSession(w, r, u.ID) {
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

// Logout ends the current session, if any, and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookieName); err == nil {
		if err := h.sessions.Destroy(r.Context(), c.Value); err != nil {
			zctx.From(r.Context()).Error("Destroy session", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
	}
	h.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully.")
}

// Status reports the logged-in user or 401.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.resolveSession(r)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		zctx.From(ctx).Error("Resolve session", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	u, err := h.users.Get(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		zctx.From(ctx).Error("Get user", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

func (h *Handler) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	d, err := readBody(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body.")
		return credentials{}, false
	}
	creds, err := decodeCredentials(d)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body.")
		return credentials{}, false
	}
	return creds, true
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID int64) bool {
	token, s, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		zctx.From(r.Context()).Error("Create session", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Session login failed.")
		return false
	}
	h.setSessionCookie(w, token, s.ExpiresAt)
	return true
}
