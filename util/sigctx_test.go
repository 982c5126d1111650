package util

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalContext(t *testing.T) {
	ctx, stop := SignalContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not canceled")
	}

	var s *Signaled
	require.True(t, errors.As(context.Cause(ctx), &s))
	assert.Equal(t, syscall.SIGUSR1, s.Signal)
}

func TestSignalContextStop(t *testing.T) {
	ctx, stop := SignalContext(context.Background(), syscall.SIGUSR2)
	stop()
	<-ctx.Done()
	assert.Equal(t, context.Canceled, context.Cause(ctx))
}
