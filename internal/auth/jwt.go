package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/park285/cheese-arena/internal/match"
)

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the identity carried by an access token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Player returns the caller identity bound to the claims.
func (c *Claims) Player() match.Player {
	return match.Player{ID: c.UserID, Name: c.Username}
}

// Manager signs and verifies HS256 tokens. Accounts are issued elsewhere; Issue exists for
// tooling and tests.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the given player.
func (m *Manager) Issue(p match.Player) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		UserID:   p.ID,
		Username: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates a token and returns its claims.
func (m *Manager) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	if claims.Username == "" {
		claims.Username = claims.UserID
	}
	return claims, nil
}

// TokenFromRequest reads "Authorization: Bearer <token>" or the token query parameter used
// by browser websocket clients.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate verifies the request's token.
func (m *Manager) Authenticate(r *http.Request) (*Claims, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return nil, ErrNoToken
	}
	return m.Verify(tok)
}

type ctxKey struct{}

// WithPlayer stores the authenticated player on ctx.
func WithPlayer(ctx context.Context, p match.Player) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PlayerFrom returns the authenticated player stored on ctx.
func PlayerFrom(ctx context.Context) (match.Player, bool) {
	p, ok := ctx.Value(ctxKey{}).(match.Player)
	return p, ok && p.ID != ""
}

// Require returns middleware that rejects requests without a valid token and binds the
// player to the request context. deny writes the 401 body; nil falls back to plain text.
func (m *Manager) Require(deny http.HandlerFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayer(r.Context(), claims.Player())))
		})
	}
}
