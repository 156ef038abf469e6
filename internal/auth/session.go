// Package auth holds the bearer credential used for outbound calls to the
// remote services and the logout hook fired when the session expires.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/pkg/logger"
)

var (
	// ErrMissingToken is returned for an empty credential.
	ErrMissingToken = errors.New("missing token")

	// ErrTokenExpired is returned for a JWT whose exp claim has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned for a JWT that fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrCredentialMismatch is returned when a token for a different
	// principal is presented while the session holds a credential.
	ErrCredentialMismatch = errors.New("session is bound to another credential")
)

// Claims are the JWT claims read from a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Session is the credential holder for one signed-in client. Opaque tokens
// are accepted as-is; tokens shaped like a JWT have their expiry checked and,
// when a secret is configured, their HMAC signature verified.
type Session struct {
	secret []byte
	now    func() time.Time
	logger *logger.Logger

	mu       sync.RWMutex
	token    string
	claims   *Claims
	onLogout []func()
}

// NewSession creates an empty session. An empty secret disables signature
// verification.
func NewSession(secret string, log *logger.Logger) *Session {
	return &Session{
		secret: []byte(secret),
		now:    time.Now,
		logger: log.Named("auth"),
	}
}

// SetToken validates and stores the bearer credential. The first token
// binds the session. Until logout, only the same token or a JWT for the same
// subject replaces it.
func (s *Session) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	var claims *Claims
	if looksLikeJWT(token) {
		parsed, err := s.parse(token)
		if err != nil {
			return err
		}
		claims = parsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.token != token && !sameSubject(s.claims, claims) {
		s.logger.Warn("rejected token for another principal")
		return ErrCredentialMismatch
	}
	s.token = token
	s.claims = claims
	return nil
}

func sameSubject(held, presented *Claims) bool {
	return held != nil && presented != nil &&
		held.Subject != "" && held.Subject == presented.Subject
}

func (s *Session) parse(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}

	if len(s.secret) == 0 {
		if _, _, err := jwt.NewParser(opts...).ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
			return nil, ErrTokenExpired
		}
		return claims, nil
	}

	opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// Token returns the current bearer credential, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subject returns the JWT subject of the current token, if any.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.Subject
}

// Authenticated reports whether a credential is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// OnLogout registers fn to run after every logout.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Logout clears the credential and runs the logout hooks.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.claims = nil
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	s.logger.Info("session logged out", zap.Int("hooks", len(hooks)))
	for _, fn := range hooks {
		fn()
	}
}
