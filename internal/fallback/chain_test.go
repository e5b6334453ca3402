package fallback_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/updown/internal/fallback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(v int, err error, calls *[]string, name string) fallback.Step[int] {
	return fallback.Step[int]{Name: name, Fn: func(context.Context) (int, error) {
		*calls = append(*calls, name)
		return v, err
	}}
}

func TestChain_FirstSuccessShortCircuits(t *testing.T) {
	var calls []string
	c := fallback.New(
		fixed(0, errors.New("down"), &calls, "a"),
		fixed(2, nil, &calls, "b"),
		fixed(3, nil, &calls, "c"),
	)

	v, name, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, "b", name)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestChain_ExhaustedJoinsErrors(t *testing.T) {
	var calls []string
	var seen []string
	c := fallback.New(
		fixed(0, errors.New("first broke"), &calls, "a"),
		fixed(0, errors.New("second broke"), &calls, "b"),
	)
	c.OnError = func(step string, _ error) { seen = append(seen, step) }

	_, name, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fallback.ErrExhausted)
	assert.Contains(t, err.Error(), "first broke")
	assert.Contains(t, err.Error(), "second broke")
	assert.Empty(t, name)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestChain_Empty(t *testing.T) {
	c := fallback.New[int]()
	_, _, err := c.Run(context.Background())
	assert.ErrorIs(t, err, fallback.ErrExhausted)
}

func TestChain_CancelledContextStops(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := fallback.New(fixed(1, nil, &calls, "a"))
	_, _, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}
