package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ctxKeySubject holds the authenticated token subject.
const ctxKeySubject contextKey = "subject"

var errMissingToken = errors.New("missing bearer token")

// authEnabled reports whether a JWT secret is configured.
func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}

// authMiddleware requires a valid HS256 token when a secret is configured.
// The token comes from the Authorization header or, for WebSocket upgrades,
// the access_token query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.authenticate(r)
		if err != nil {
			s.logger.Debug("rejected request", "path", r.URL.Path, "error", err,
				"request_id", r.Context().Value(ctxKeyRequestID))
			writeError(w, r, http.StatusUnauthorized, "valid bearer token required")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeySubject, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticate(r *http.Request) (*jwt.RegisteredClaims, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return nil, fmt.Errorf("authorization header is not a bearer token")
		}
		raw = token
	} else if websocketUpgrade(r) {
		raw = r.URL.Query().Get("access_token")
	}
	if raw == "" {
		return nil, errMissingToken
	}
	return ParseToken(raw, s.secCfg.JWT.Secret, s.secCfg.JWT.Issuer)
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// IssueToken signs an HS256 token for subject. ttl 0 means no expiry; a
// negative ttl yields an already expired token.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("issuing token: empty secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, expiry and, when issuer is set, the
// issuer of tokenString.
func ParseToken(tokenString, secret, issuer string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("parsing token: invalid claims")
	}
	return claims, nil
}
