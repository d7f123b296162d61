package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/classdesk/internal/auth"
	"github.com/dukerupert/classdesk/internal/model"
)

// IdentityCookieName holds the anonymous identity token.
const IdentityCookieName = "classdesk_identity"

const (
	identityCookieMaxAge = 400 * 24 * 60 * 60
	touchInterval        = time.Hour
	newIdentityLimit     = 20
	newIdentityWindow    = time.Hour
)

// IdentityStore resolves and mints anonymous identities.
type IdentityStore interface {
	Create(ctx context.Context) (*model.Identity, string, error)
	GetByToken(ctx context.Context, token string) (*model.Identity, error)
	Touch(ctx context.Context, subject string) error
}

// IdentityOptions tunes EnsureIdentity.
type IdentityOptions struct {
	// Secure marks the cookie HTTPS-only.
	Secure bool
	// Limiter, if set, caps how many identities one client IP may mint.
	Limiter *RateLimiter
}

// EnsureIdentity resolves the identity cookie into an auth.Identity. A
// request without a valid cookie gets a fresh identity and a Set-Cookie.
// The same cookie always resolves to the same subject.
func EnsureIdentity(identities IdentityStore, logger *slog.Logger, opts IdentityOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cookie, err := r.Cookie(IdentityCookieName); err == nil && cookie.Value != "" {
				id, err := identities.GetByToken(ctx, cookie.Value)
				if err != nil {
					logger.Error("resolve identity", "error", err)
					writeError(w, http.StatusInternalServerError, "identity lookup failed", 0)
					return
				}
				if id != nil {
					if time.Since(id.LastSeenAt) > touchInterval {
						if err := identities.Touch(ctx, id.Subject); err != nil {
							logger.Warn("touch identity", "subject", id.Subject, "error", err)
						}
					}
					recordSubject(w, id.Subject)
					next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, auth.Identity{Subject: id.Subject})))
					return
				}
			}

			if opts.Limiter != nil {
				if ok, retry := opts.Limiter.Allow("identity:"+RealIP(r), newIdentityLimit, newIdentityWindow); !ok {
					writeError(w, http.StatusTooManyRequests, "too many new sessions", retry)
					return
				}
			}

			id, token, err := identities.Create(ctx)
			if err != nil {
				logger.Error("create identity", "error", err)
				writeError(w, http.StatusInternalServerError, "identity creation failed", 0)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     IdentityCookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   identityCookieMaxAge,
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			recordSubject(w, id.Subject)
			logger.Info("identity created", "subject", id.Subject, "remote", RealIP(r))
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, auth.Identity{Subject: id.Subject, New: true})))
		})
	}
}

// recordSubject lets RequestLogger include the subject when it wraps w.
func recordSubject(w http.ResponseWriter, subject string) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.subject = subject
	}
}
