// Package auth handles GitHub sign-in and the session cookie.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/github/login → redirected to GitHub
//  2. GitHub calls back /auth/github/callback with a code
//  3. Server exchanges the code for an access token and the user's profile,
//     upserts the user record
//  4. Server issues a session JWT, stores it in an HttpOnly cookie
//  5. RequireAuth reads the cookie on protected routes and puts the Session
//     in the request context
//
// The session carries the user's GitHub access token, sealed (see Sealer),
// so API handlers can call GitHub as the user without any server-side state.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL is how long a session cookie stays valid.
	SessionTTL = 30 * 24 * time.Hour
	issuer     = "forkwatch"
)

// Session is the authenticated identity of a request.
type Session struct {
	Email       string
	Login       string
	Name        string
	GitHubToken string
}

// TokenService issues and validates session JWTs.
type TokenService struct {
	secret []byte
	sealer *Sealer
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret signs the JWT and,
// through HKDF, keys the sealed GitHub token.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	sealer, err := NewSealer(secret)
	if err != nil {
		return nil, err
	}
	return &TokenService{secret: []byte(secret), sealer: sealer, now: time.Now}, nil
}

// claims is the JWT payload. Subject is the user's email.
type claims struct {
	jwt.RegisteredClaims
	Login       string `json:"login,omitempty"`
	Name        string `json:"name,omitempty"`
	SealedToken string `json:"gat,omitempty"`
}

// Generate signs a session valid for SessionTTL.
func (s *TokenService) Generate(sess Session) (string, error) {
	return s.GenerateWithDuration(sess, SessionTTL)
}

// GenerateWithDuration signs a session valid for d. Tests use a negative d
// to produce an expired token.
func (s *TokenService) GenerateWithDuration(sess Session, d time.Duration) (string, error) {
	if sess.Email == "" {
		return "", errors.New("auth: session has no email")
	}

	var sealed string
	if sess.GitHubToken != "" {
		var err error
		sealed, err = s.sealer.Seal(sess.GitHubToken)
		if err != nil {
			return "", err
		}
	}

	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Login:       sess.Login,
		Name:        sess.Name,
		SealedToken: sealed,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies a session JWT and returns the Session inside it.
//
// Checks performed: HS256 signature, expiry (required), issuer. An unsealable
// GitHub token invalidates the whole session.
func (s *TokenService) Validate(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	sess := &Session{Email: c.Subject, Login: c.Login, Name: c.Name}
	if c.SealedToken != "" {
		sess.GitHubToken, err = s.sealer.Open(c.SealedToken)
		if err != nil {
			return nil, err
		}
	}
	return sess, nil
}
