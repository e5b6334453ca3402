// Package fallback runs an ordered list of capability-equivalent strategies and
// returns the first success.
package fallback

import (
	"context"
	"errors"
	"fmt"
)

// ErrExhausted is returned when every step of a chain failed.
var ErrExhausted = errors.New("fallback: all strategies failed")

// Step is one strategy of a chain.
type Step[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, error)
}

// Chain is an ordered list of steps. The zero value is an empty chain that
// always fails.
type Chain[T any] struct {
	steps []Step[T]

	// OnError, when set, is called for every failed step.
	OnError func(step string, err error)
}

// New builds a chain from steps in priority order.
func New[T any](steps ...Step[T]) *Chain[T] {
	return &Chain[T]{steps: steps}
}

// Len returns the number of steps.
func (c *Chain[T]) Len() int { return len(c.steps) }

// Run tries each step in order and returns the first success together with the
// step name. Step errors never abort the chain; only exhaustion is reported.
func (c *Chain[T]) Run(ctx context.Context) (T, string, error) {
	var zero T
	errs := make([]error, 0, len(c.steps))
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v, err := s.Fn(ctx)
		if err == nil {
			return v, s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		if c.OnError != nil {
			c.OnError(s.Name, err)
		}
	}
	if len(errs) == 0 {
		return zero, "", ErrExhausted
	}
	return zero, "", fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}
