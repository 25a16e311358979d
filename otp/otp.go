// Package otp issues and checks the one-time codes used for password reset.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("otp: no active code")
	ErrMismatch        = errors.New("otp: code does not match")
	ErrTooSoon         = errors.New("otp: code requested too recently")
	ErrTooManyAttempts = errors.New("otp: too many failed attempts")
)

const (
	DefaultTTL            = 10 * time.Minute
	DefaultResendInterval = time.Minute
	DefaultMaxAttempts    = 5
	CodeLength            = 6
)

// Store keeps at most one live code per email. A successful Verify consumes
// the code and leaves a reset mark that ConsumeVerified takes exactly once.
type Store interface {
	Issue(ctx context.Context, email, code string) error
	Verify(ctx context.Context, email, code string) error
	ConsumeVerified(ctx context.Context, email string) (bool, error)
	Close() error
}

type Options struct {
	TTL            time.Duration
	ResendInterval time.Duration
	MaxAttempts    int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.ResendInterval < 0 {
		o.ResendInterval = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// GenerateCode returns a uniformly random decimal code of CodeLength digits.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
