// Package idgen issues human-readable product and order numbers: a kind
// letter, a minute-resolution UTC timestamp and a random suffix. Candidates
// are checked against storage before being handed out; the unique index on
// the number column remains the final guard between concurrent writers.
package idgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

type Kind string

const (
	KindProduct Kind = "product"
	KindOrder   Kind = "order"
)

const (
	DefaultAttempts = 5
	suffixDigits    = 6
	timeLayout      = "0601021504"
)

var prefixes = map[Kind]string{
	KindProduct: "P",
	KindOrder:   "T",
}

var suffixSpace = big.NewInt(1_000_000)

type NumberChecker interface {
	NumberExists(ctx context.Context, number string) (bool, error)
}

type Generator struct {
	checkers map[Kind]NumberChecker
	attempts int
	clock    func() time.Time
	suffix   func() (string, error)
}

type Option func(*Generator)

func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(g *Generator) { g.clock = clock }
}

// WithSuffix replaces the random suffix source.
func WithSuffix(fn func() (string, error)) Option {
	return func(g *Generator) { g.suffix = fn }
}

func New(products, orders NumberChecker, opts ...Option) *Generator {
	g := &Generator{
		checkers: map[Kind]NumberChecker{
			KindProduct: products,
			KindOrder:   orders,
		},
		attempts: DefaultAttempts,
		clock:    time.Now,
		suffix:   randomSuffix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Attempts() int { return g.attempts }

// Generate returns a number of the given kind that was unused at the time
// of the check. It gives up with booking.ErrExhaustedRetries after the
// configured number of colliding candidates.
func (g *Generator) Generate(ctx context.Context, kind Kind) (string, error) {
	prefix, ok := prefixes[kind]
	checker := g.checkers[kind]
	if !ok || checker == nil {
		return "", fmt.Errorf("%w: unknown number kind %q", booking.ErrInvalid, kind)
	}

	for i := 0; i < g.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		suffix, err := g.suffix()
		if err != nil {
			return "", fmt.Errorf("number suffix: %w", err)
		}
		candidate := prefix + g.clock().UTC().Format(timeLayout) + suffix

		taken, err := checker.NumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free %s number after %d attempts", booking.ErrExhaustedRetries, kind, g.attempts)
}

func randomSuffix() (string, error) {
	n, err := rand.Int(rand.Reader, suffixSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", suffixDigits, n.Int64()), nil
}
