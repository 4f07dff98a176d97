// Package cookie protects and transports flow state in browser cookies.
//
// Values are HS256-signed JWTs carrying an expiry and a purpose (normally the
// cookie name) so a value minted for one cookie cannot be replayed in another.
package cookie

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the minimum HMAC key size in bytes
const MinKeyLength = 32

var (
	// ErrKeyTooShort is returned by NewCodec for weak keys
	ErrKeyTooShort = errors.New("cookie key must be at least 32 bytes")
	// ErrInvalid is returned for tampered, expired or misdirected values
	ErrInvalid = errors.New("invalid cookie value")
)

type envelope struct {
	jwt.RegisteredClaims
	Purpose string          `json:"pur"`
	Data    json.RawMessage `json:"dat"`
}

// Codec signs and verifies cookie payloads
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec creates a codec using an HMAC secret
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k, now: time.Now}, nil
}

// WithClock returns a copy of the codec using now as its time source
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{key: c.key, now: now}
}

// Encode serializes v and signs it for purpose, valid for ttl
func (c *Codec) Encode(purpose string, v any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("cookie ttl must be positive")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cookie payload: %w", err)
	}

	now := c.now()
	env := envelope{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
		Data:    data,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, env).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies value for purpose and unmarshals its payload into v
func (c *Codec) Decode(purpose, value string, v any) error {
	if value == "" {
		return ErrInvalid
	}

	env := &envelope{}
	_, err := jwt.ParseWithClaims(value, env, func(t *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if env.Purpose != purpose {
		return fmt.Errorf("%w: purpose mismatch", ErrInvalid)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
