// Package api is the HTTP boundary: authentication, rate limiting, input
// validation and the JSON handlers over the queue service.
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey contextKey = "user_id"
	// RoleKey is the context key for the authenticated role
	RoleKey contextKey = "role"
)

// Auth validates bearer tokens of the form
// userId|role|expiryUnix|hex(hmac-sha256(secret, "userId|role|expiryUnix")).
// Token issuance lives with the identity service; this side only verifies.
type Auth struct {
	secret []byte
	clock  clockwork.Clock
}

func NewAuth(secret string, clock clockwork.Clock) *Auth {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Auth{secret: []byte(secret), clock: clock}
}

// Token builds a signed token. Used by tests and the local dev tooling.
func (a *Auth) Token(userID string, role models.Role, expiry time.Time) string {
	payload := fmt.Sprintf("%s|%s|%d", userID, role, expiry.Unix())
	return payload + "|" + a.sign(payload)
}

func (a *Auth) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// verify parses and checks a token, returning userId and role.
func (a *Auth) verify(token string) (string, models.Role, error) {
	const op = "api.Auth.verify"
	parts := strings.Split(token, "|")
	if len(parts) != 4 {
		return "", "", errs.New(errs.CodeUnauthorized, op, "malformed token", nil)
	}
	userID, role, expStr, sig := parts[0], models.Role(parts[1]), parts[2], parts[3]
	payload := strings.Join(parts[:3], "|")
	if !hmac.Equal([]byte(a.sign(payload)), []byte(sig)) {
		return "", "", errs.New(errs.CodeUnauthorized, op, "bad signature", nil)
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", "", errs.New(errs.CodeUnauthorized, op, "bad expiry", err)
	}
	if a.clock.Now().Unix() >= exp {
		return "", "", errs.New(errs.CodeUnauthorized, op, "token expired", nil)
	}
	if userID == "" || (role != models.RoleCustomer && role != models.RoleVenueOwner) {
		return "", "", errs.New(errs.CodeUnauthorized, op, "bad principal", nil)
	}
	return userID, role, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// principal in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, errs.New(errs.CodeUnauthorized, "api.Auth", "missing bearer token", nil))
			return
		}
		userID, role, err := a.verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, RoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext retrieves the authenticated user and role.
func PrincipalFromContext(ctx context.Context) (string, models.Role, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return "", "", false
	}
	role, ok := ctx.Value(RoleKey).(models.Role)
	return userID, role, ok
}
