package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid resume token")

// DefaultTokenTTL is how long a peer may take to resume a session.
const DefaultTokenTTL = 12 * time.Hour

// ResumeClaims identify a user within a room.
type ResumeClaims struct {
	RoomID string
	UserID string
}

type resumeClaims struct {
	jwt.RegisteredClaims
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// TokenIssuer signs and verifies resume tokens with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a token that lets userID resume its seat in roomID.
func (t *TokenIssuer) Issue(roomID, userID string) (string, error) {
	now := t.now()
	claims := resumeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		RoomID: roomID,
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign resume token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (t *TokenIssuer) Parse(token string) (ResumeClaims, error) {
	var parsed resumeClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return ResumeClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if parsed.RoomID == "" || parsed.UserID == "" {
		return ResumeClaims{}, fmt.Errorf("%w: missing room or user", ErrInvalidToken)
	}
	return ResumeClaims{RoomID: parsed.RoomID, UserID: parsed.UserID}, nil
}
