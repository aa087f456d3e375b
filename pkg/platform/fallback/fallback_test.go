package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcheck/pkg/platform/circuit"
	"labelcheck/pkg/platform/sentinel"
)

var errDown = errors.New("connection refused")

func TestGuardDo(t *testing.T) {
	ctx := context.Background()

	t.Run("marks failures unavailable", func(t *testing.T) {
		g := NewGuard("test", circuit.New("test"), nil)
		err := g.Do(ctx, "write", func(context.Context) error { return errDown })
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.ErrorIs(t, err, errDown)
	})

	t.Run("skips durable store while open", func(t *testing.T) {
		g := NewGuard("test", circuit.New("test", circuit.WithFailureThreshold(1)), nil)
		_ = g.Do(ctx, "write", func(context.Context) error { return errDown })

		called := false
		err := g.Do(ctx, "write", func(context.Context) error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.ErrorIs(t, err, ErrSkipped)
	})

	t.Run("not found is a fact, not an outage", func(t *testing.T) {
		b := circuit.New("test", circuit.WithFailureThreshold(1))
		g := NewGuard("test", b, nil)
		err := g.Do(ctx, "read", func(context.Context) error { return sentinel.ErrNotFound })
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
		assert.False(t, b.IsOpen())
	})
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	g := NewGuard("test", nil, nil)
	missing := func(context.Context) (string, error) { return "", sentinel.ErrNotFound }

	t.Run("memory hit skips durable store", func(t *testing.T) {
		called := false
		got, err := Read(ctx, g, "get",
			func(context.Context) (string, error) { return "memory", nil },
			func(context.Context) (string, error) { called = true; return "durable", nil },
		)
		require.NoError(t, err)
		assert.Equal(t, "memory", got)
		assert.False(t, called)
	})

	t.Run("memory miss reads durable store", func(t *testing.T) {
		got, err := Read(ctx, g, "get", missing, func(context.Context) (string, error) { return "durable", nil })
		require.NoError(t, err)
		assert.Equal(t, "durable", got)
	})

	t.Run("outage reports the memory miss", func(t *testing.T) {
		_, err := Read(ctx, g, "get", missing, func(context.Context) (string, error) { return "", errDown })
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("memory failures are returned as is", func(t *testing.T) {
		_, err := Read(ctx, g, "get",
			func(context.Context) (string, error) { return "", errDown },
			func(context.Context) (string, error) { return "durable", nil },
		)
		assert.ErrorIs(t, err, errDown)
	})
}

func TestWriteSwallowsErrors(t *testing.T) {
	g := NewGuard("test", nil, nil)
	assert.NotPanics(t, func() {
		g.Write(context.Background(), "save", func(context.Context) error { return errDown })
	})
}
