package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowIP_BlocksAfterLimitReached(t *testing.T) {
	l, err := New("2-M", "100-M", nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.AllowIP(ctx, "1.2.3.4"))
	assert.True(t, l.AllowIP(ctx, "1.2.3.4"))
	assert.False(t, l.AllowIP(ctx, "1.2.3.4"))

	// A different IP has its own independent counter.
	assert.True(t, l.AllowIP(ctx, "5.6.7.8"))
}

func TestAllowUser_BlocksAfterLimitReached(t *testing.T) {
	l, err := New("100-M", "1-M", nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.AllowUser(ctx, "user-1"))
	assert.False(t, l.AllowUser(ctx, "user-1"))
}

func TestNilLimiter_AlwaysAllows(t *testing.T) {
	var l *Limiter
	assert.True(t, l.AllowIP(context.Background(), "1.2.3.4"))
	assert.True(t, l.AllowUser(context.Background(), "user-1"))
}

func TestNew_RejectsInvalidRateFormat(t *testing.T) {
	_, err := New("not-a-rate", "10-M", nil)
	assert.Error(t, err)
}
