package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadToken = errors.New("invalid panel token")

// VerifySignature checks a platform webhook signature header of the form
// "t=<unix ts>,v0=<hex digest>". The platform has shipped three signing
// bases over time, so any of HMAC(body), HMAC(t + "." + body) and
// HMAC(t + body) is accepted.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}

	var ts, v0 string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(part, "t="); ok {
			ts = rest
		}
		if rest, ok := strings.CutPrefix(part, "v0="); ok {
			v0 = rest
		}
	}
	if v0 == "" {
		return false
	}

	key := []byte(secret)
	candidates := [][]byte{
		body,
		[]byte(ts + "." + string(body)),
		[]byte(ts + string(body)),
	}
	matched := false
	for _, c := range candidates {
		mac := hmac.New(sha256.New, key)
		mac.Write(c)
		expected := hex.EncodeToString(mac.Sum(nil))
		if safeEqual(v0, expected) {
			matched = true
		}
	}
	return matched
}

// safeEqual performs a constant-time string comparison to prevent timing
// attacks. Length is compared in constant time as well.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// checkPassword compares a panel login password against an agent's stored
// bcrypt hash.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// issuePanelToken signs an HS256 JWT whose subject is the agent id.
func issuePanelToken(secret, agentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   agentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// parsePanelToken validates a panel JWT and returns its subject.
func parsePanelToken(secret, raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrBadToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrBadToken
	}
	return sub, nil
}

// bearerToken extracts the credential from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return rest
	}
	return ""
}

// panelSecret resolves the JWT signing secret, falling back to the
// webhook secret when none is configured.
func (s *Server) panelSecret() string {
	if s.cfg.Panel.JWTSecret != "" {
		return s.cfg.Panel.JWTSecret
	}
	return s.cfg.Gateway.WebhookSecret
}

// adminAuthorized checks the gateway token on admin and stream endpoints.
// The token may arrive as a Bearer header or a "token" query parameter.
func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.cfg.Gateway.Token == "" {
		return false
	}
	provided := bearerToken(r)
	if provided == "" {
		provided = r.URL.Query().Get("token")
	}
	return safeEqual(provided, s.cfg.Gateway.Token)
}
