// Package identity resolves the owner a request's conversations belong to.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/brieflab/internal/domain"
)

const (
	AnonCookieName   = "brieflab_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const ownerKey contextKey = iota

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// OwnerFromContext returns the conversation owner, or the default owner.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey).(string); ok && v != "" {
		return v
	}
	return domain.DefaultOwner
}

// WithOwner returns a context carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		id = c.Value
	} else {
		generated, err := generateAnonID()
		if err != nil {
			return "", err
		}
		id = generated
	}

	// Refresh the expiry on every request.
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

// Middleware injects the conversation owner. With multiTenant disabled every
// request shares the default owner; otherwise each device gets an anonymous
// owner id kept in a cookie.
func Middleware(multiTenant, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !multiTenant {
				next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), domain.DefaultOwner)))
				return
			}

			owner, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and logs.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
