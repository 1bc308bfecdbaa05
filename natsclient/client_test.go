package natsclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/metric"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalid(err))
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestCircuitBreaker(t *testing.T) {
	c, err := NewClient("nats://invalid:4222", WithCircuitBreakerThreshold(3), WithMaxBackoff(4*time.Second))
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, int32(3), c.Failures())
	assert.Equal(t, 2*time.Second, c.Backoff())

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, apperrors.IsTransient(err))

	for i := 0; i < 6; i++ {
		c.recordFailure()
	}
	assert.Equal(t, 4*time.Second, c.Backoff(), "backoff is capped")

	c.resetCircuit()
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	c, err := NewClient("nats://invalid:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)
	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	c.halfOpen()
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestNotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	err = c.Publish(ctx, "a.b", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, apperrors.IsTransient(err))

	err = c.Subscribe(ctx, "a.b", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx), "close is idempotent")
}

func TestConnect_Unreachable(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1", WithTimeout(200*time.Millisecond), WithMaxReconnects(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, int32(1), c.Failures())
}

func TestWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewClient("nats://localhost:4222", WithMetrics(registry))
	require.NoError(t, err)
	require.NotNil(t, c.metrics)

	_, err = NewClient("nats://localhost:4222", WithMetrics(registry))
	assert.Error(t, err, "metrics register once per registry")

	c2, err := NewClient("nats://localhost:4222", WithMetrics(nil))
	require.NoError(t, err)
	assert.Nil(t, c2.metrics)
	c2.metrics.recordMessage("published")
}

func TestKVErrorClassification(t *testing.T) {
	tests := []struct {
		err      error
		notFound bool
		conflict bool
	}{
		{nil, false, false},
		{ErrKVKeyNotFound, true, false},
		{fmt.Errorf("wrap: %w", ErrKVKeyNotFound), true, false},
		{errors.New("nats: key not found"), true, false},
		{ErrKVRevisionMismatch, false, true},
		{ErrKVKeyExists, false, true},
		{errors.New("nats: wrong last sequence: 4"), false, true},
		{errors.New("timeout"), false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.notFound, IsKVNotFoundError(tt.err), "%v", tt.err)
		assert.Equal(t, tt.conflict, IsKVConflictError(tt.err), "%v", tt.err)
	}
}
