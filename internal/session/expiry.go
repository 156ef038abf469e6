package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/pkg/logger"
)

// Authenticator ends the signed-in session.
type Authenticator interface {
	Logout()
}

// Expiry signs the user out a fixed delay after the remote service rejects
// the session. The query path and the history path both report through it.
type Expiry struct {
	auth   Authenticator
	delay  time.Duration
	logger *logger.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewExpiry creates an Expiry. A nil auth makes Expire a no-op.
func NewExpiry(auth Authenticator, delay time.Duration, log *logger.Logger) *Expiry {
	if delay < 0 {
		delay = 0
	}
	return &Expiry{
		auth:   auth,
		delay:  delay,
		logger: log.Named("expiry"),
	}
}

// Expire schedules the logout. A logout already pending is not rescheduled.
// It never blocks and may be called with other locks held.
func (e *Expiry) Expire() {
	if e == nil || e.auth == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.timer != nil {
		return
	}
	e.logger.Info("session expired, logging out", zap.Duration("delay", e.delay))
	e.timer = time.AfterFunc(e.delay, func() {
		e.auth.Logout()
		e.mu.Lock()
		e.timer = nil
		e.mu.Unlock()
	})
}

// Pending reports whether a logout is scheduled.
func (e *Expiry) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

// Close cancels a pending logout and ignores later expiries.
func (e *Expiry) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
