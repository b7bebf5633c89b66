package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"genhub/internal/config"
	"genhub/internal/infra/logging"
	"genhub/internal/infra/redis"
)

const (
	cookieName       = "genhub_session"
	loginLimit       = 5
	loginLimitWindow = time.Minute
)

// LoginLimiter throttles password attempts per client address.
type LoginLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type AuthManager struct {
	cfg    config.AuthConfig
	secret []byte
	now    func() time.Time
}

func NewAuthManager(cfg config.AuthConfig) *AuthManager {
	return &AuthManager{cfg: cfg, secret: []byte(cfg.HMACSecret), now: time.Now}
}

// Enabled reports whether an admin password is set. Without one the API is
// open, which only makes sense on a trusted network.
func (a *AuthManager) Enabled() bool { return a.cfg.AdminPassword != "" }

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthManager) Mint(w http.ResponseWriter) (string, error) {
	now := a.now()
	claims := adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   "admin",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, a.cookie(signed, int(a.cfg.TTL.Seconds())))
	return signed, nil
}

func (a *AuthManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie("", -1))
}

func (a *AuthManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

// CheckPassword compares in constant time.
func (a *AuthManager) CheckPassword(pw string) bool {
	return subtle.ConstantTimeCompare([]byte(pw), []byte(a.cfg.AdminPassword)) == 1
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*adminClaims, error) {
	if hdr := r.Header.Get("Authorization"); len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return a.parse(strings.TrimSpace(hdr[7:]))
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return a.parse(c.Value)
	}
	return nil, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (*adminClaims, error) {
	claims := &adminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (a *AuthManager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := a.ParseFromRequest(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeJSON(w, http.StatusNotFound, envelope{Error: "authentication is disabled"})
		return
	}
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), redis.LoginAttemptKey(clientIP(r)), loginLimit, loginLimitWindow)
		if err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("login rate limiter unavailable")
		} else if !allowed {
			writeJSON(w, http.StatusTooManyRequests, envelope{Error: "too many login attempts, try again later"})
			return
		}
	}

	var req loginRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if !s.auth.CheckPassword(req.Password) {
		logging.With(r.Context(), s.log).Warn().Str("remote", clientIP(r)).Msg("admin login rejected")
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "invalid password"})
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	success(w, http.StatusOK, nil)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
