// Package auth issues the seat tokens a client presents to rejoin a game.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that are malformed, expired, badly
// signed, or issued for another seat.
var ErrInvalidToken = errors.New("invalid seat token")

// SeatClaims binds a player id (the subject) to one session code.
type SeatClaims struct {
	Session string `json:"ses"`
	jwt.RegisteredClaims
}

// Issuer signs and checks seat tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. An empty secret is replaced by a random one,
// which makes tokens valid only for the life of the process.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}
	return &Issuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a token for playerID's seat in session code.
func (i *Issuer) Issue(code, playerID string) (string, error) {
	now := i.now()
	claims := SeatClaims{
		Session: code,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  playerID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks that token was issued by i for playerID in session code.
func (i *Issuer) Verify(token, code, playerID string) error {
	var claims SeatClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithSubject(playerID),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Session != code {
		return fmt.Errorf("%w: issued for session %s", ErrInvalidToken, claims.Session)
	}
	return nil
}
