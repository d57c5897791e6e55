package cache

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	none := None[string]()
	some := Some("x")

	assert.False(t, none.Present())
	assert.True(t, some.Present())
	assert.Equal(t, "default", none.Or("default"))
	assert.Equal(t, "x", some.Or("default"))

	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	v, ok = none.Get()
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestValueOrWait(t *testing.T) {
	calls := 0
	fallback := func(ctx context.Context) (string, error) {
		calls++
		return "fetched", nil
	}

	got, err := Some("x").OrWait(context.Background(), fallback)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, 0, calls)

	got, err = None[string]().OrWait(context.Background(), fallback)
	require.NoError(t, err)
	assert.Equal(t, "fetched", got)
	assert.Equal(t, 1, calls)

	boom := stderrors.New("boom")
	_, err = None[string]().OrWait(context.Background(), func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "start", StateStart.String())
	assert.Equal(t, "ssr", StateSSR.String())
	assert.Equal(t, "ready", StateReady.String())
}
