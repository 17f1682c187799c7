package frame

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StateParam is the query parameter carrying a signed button value.
const StateParam = "s"

const stateIssuer = "topframe"

// ErrInvalidState is returned for tokens that are malformed, expired or not ours.
var ErrInvalidState = errors.New("invalid frame state")

type stateClaims struct {
	Value string `json:"v"`
	jwt.RegisteredClaims
}

// StateCodec signs button values so a client cannot forge them.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateCodec returns an HS256 codec. Tokens expire after ttl; zero means never.
func NewStateCodec(secret []byte, ttl time.Duration) *StateCodec {
	return &StateCodec{secret: secret, ttl: ttl, now: time.Now}
}

// Encode signs value.
func (c *StateCodec) Encode(value string) (string, error) {
	now := c.now()
	claims := stateClaims{
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   stateIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies token and returns its value.
func (c *StateCodec) Decode(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidState
	}
	parsed, err := jwt.ParseWithClaims(token, &stateClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", ErrInvalidState
	}
	claims, ok := parsed.Claims.(*stateClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidState
	}
	return claims.Value, nil
}

// ValueOr decodes token, falling back to def for missing or invalid tokens.
func (c *StateCodec) ValueOr(token, def string) string {
	v, err := c.Decode(token)
	if err != nil {
		return def
	}
	return v
}
