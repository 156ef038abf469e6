package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/querychat/pkg/logger"
)

func TestExpireLogsOutOnceAfterDelay(t *testing.T) {
	auth := &fakeAuth{}
	e := NewExpiry(auth, 20*time.Millisecond, logger.NewNop())
	t.Cleanup(e.Close)

	e.Expire()
	e.Expire()
	assert.True(t, e.Pending())
	assert.Equal(t, int32(0), auth.logouts.Load())

	require.Eventually(t, func() bool { return auth.logouts.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !e.Pending() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), auth.logouts.Load())
}

func TestCloseCancelsPendingLogout(t *testing.T) {
	auth := &fakeAuth{}
	e := NewExpiry(auth, 20*time.Millisecond, logger.NewNop())

	e.Expire()
	e.Close()
	e.Expire()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), auth.logouts.Load())
	assert.False(t, e.Pending())
}

func TestNilExpiryIsNoop(t *testing.T) {
	var e *Expiry
	assert.NotPanics(t, e.Expire)

	assert.NotPanics(t, NewExpiry(nil, 0, logger.NewNop()).Expire)
}
