package resource

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerCallSlots(t *testing.T) {
	c := NewController(Config{MaxConcurrentCalls: 2})
	ctx := context.Background()

	require.NoError(t, c.AcquireCall(ctx))
	require.NoError(t, c.AcquireCall(ctx))
	assert.Equal(t, int64(2), c.InFlight())

	// Third slot is unavailable without blocking.
	assert.False(t, c.TryAcquireCall())

	c.ReleaseCall()
	assert.Equal(t, int64(1), c.InFlight())
	assert.True(t, c.TryAcquireCall())

	c.ReleaseCall()
	c.ReleaseCall()
	assert.Zero(t, c.InFlight())
}

func TestControllerAcquireHonorsContext(t *testing.T) {
	c := NewController(Config{MaxConcurrentCalls: 1})
	ctx := context.Background()

	require.NoError(t, c.AcquireCall(ctx))
	defer c.ReleaseCall()

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	err := c.AcquireCall(timeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), c.InFlight())
}

func TestNilControllerIsUnlimited(t *testing.T) {
	var c *Controller
	ctx := context.Background()

	require.NoError(t, c.AcquireCall(ctx))
	assert.True(t, c.TryAcquireCall())
	c.ReleaseCall()
	assert.Zero(t, c.InFlight())
	require.NoError(t, c.AcquireIO(ctx, 1<<20))
}

func TestControllerDefaultsToOneSlot(t *testing.T) {
	c := NewController(Config{})

	assert.True(t, c.TryAcquireCall())
	assert.False(t, c.TryAcquireCall())
	c.ReleaseCall()
}

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(Config{MaxConcurrentCalls: 1})
	var buf bytes.Buffer

	w := NewRateLimitedWriter(context.Background(), &buf, c)
	n, err := w.Write([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", buf.String())
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{MaxConcurrentCalls: 1})

	r := NewRateLimitedReader(context.Background(), strings.NewReader("payload"), c)
	p := make([]byte, 7)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", string(p))
}
