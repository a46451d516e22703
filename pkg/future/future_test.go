package future

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/errors"
)

func TestCompleteThenWait(t *testing.T) {
	f := New[int]()
	assert.True(t, f.Complete(42))

	v, err := f.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestWaitThenComplete(t *testing.T) {
	f := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Complete("done")
	}()

	v, err := f.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestOnlyFirstCompleteWins(t *testing.T) {
	f := New[int]()
	assert.True(t, f.Complete(1))
	assert.False(t, f.Complete(2))

	v, err := f.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitTimeout(t *testing.T) {
	f := New[int]()
	_, err := f.Wait(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWaitTimeout))
}

func TestWaitCancelled(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := f.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTryGet(t *testing.T) {
	f := New[int]()
	_, ok := f.TryGet()
	assert.False(t, ok)

	f.Complete(7)
	v, ok := f.TryGet()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}
