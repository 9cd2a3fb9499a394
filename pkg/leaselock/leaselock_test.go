package leaselock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsNormalize(t *testing.T) {
	o := Options{}.normalize()
	assert.Equal(t, defaultTTL, o.TTL)
	assert.Equal(t, defaultTTL/2, o.RenewEvery)
	assert.Equal(t, 250*time.Millisecond, o.WaitInterval)

	o = Options{TTL: time.Second, RenewEvery: 2 * time.Second, WaitJitter: -1}.normalize()
	assert.Equal(t, time.Second, o.RenewEvery)
	assert.Zero(t, o.WaitJitter)

	o = Options{TTL: time.Minute, RenewEvery: 10 * time.Second}.normalize()
	assert.Equal(t, 10*time.Second, o.RenewEvery)
}

func TestSleepWithJitter(t *testing.T) {
	require.NoError(t, sleepWithJitter(context.Background(), 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepWithJitter(ctx, time.Hour, 0), context.Canceled)
}

func TestLocal_BusyWhileHeld(t *testing.T) {
	l := NewLocal()
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- l.WithLease(context.Background(), "graph:g:sync", func(context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	assert.True(t, l.Held("graph:g:sync"))
	err := l.WithLease(context.Background(), "graph:g:sync", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	// other keys are independent
	ran := false
	require.NoError(t, l.WithLease(context.Background(), "graph:g:cleanup", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, l.Held("graph:g:sync"))
}

func TestLocal_ReleasesOnError(t *testing.T) {
	l := NewLocal()
	boom := errors.New("boom")
	err := l.WithLease(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.Held("k"))

	assert.Error(t, l.WithLease(context.Background(), "", func(context.Context) error { return nil }))
}
