// Package resume makes partial sign-in resume tokens single use.
package resume

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL covers the longest a partial sign-in can stay valid
const DefaultTTL = 10 * time.Hour

// ErrEmptyToken is returned for a blank token
var ErrEmptyToken = errors.New("resume token is required")

// Guard records consumed resume tokens
type Guard interface {
	// Consume marks token as used. It returns false when the token was
	// already consumed.
	Consume(ctx context.Context, token string) (bool, error)
}
