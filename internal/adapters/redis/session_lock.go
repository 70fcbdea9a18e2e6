package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
)

// SessionLock guards the "one running session per agent" invariant when
// several driver pods share a database
type SessionLock interface {
	// TryAcquire returns true if this process now owns the agent's
	// session slot, false if another process holds it
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedSessionLock is the redlock-backed SessionLock
type RedSessionLock struct {
	lockManager *redlock.RedLock
	agentID     string
	sessionID   string
	lockName    string
	ttl         time.Duration
	locked      bool
}

// NewSessionLock creates a lock keyed by agent, not session, so two
// sessions for the same agent exclude each other
func NewSessionLock(lockManager *redlock.RedLock, agentID, sessionID string) *RedSessionLock {
	return &RedSessionLock{
		lockManager: lockManager,
		agentID:     agentID,
		sessionID:   sessionID,
		lockName:    fmt.Sprintf("session:lock:%s", agentID),
		ttl:         60 * time.Second,
	}
}

// TryAcquire attempts to claim the agent's session slot
func (sl *RedSessionLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := sl.lockManager.Lock(ctx, sl.lockName, sl.ttl)
	if err != nil {
		logger.Debug("session slot already held",
			zap.String("agent_id", sl.agentID),
			zap.String("session_id", sl.sessionID),
		)
		return false, nil
	}
	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire session lock: invalid expiry %v", expiry)
	}

	sl.locked = true

	logger.Info("session slot acquired",
		zap.String("agent_id", sl.agentID),
		zap.String("session_id", sl.sessionID),
		zap.Duration("ttl", sl.ttl),
	)

	go sl.renew(ctx)

	return true, nil
}

// Release frees the session slot
func (sl *RedSessionLock) Release(ctx context.Context) error {
	if !sl.locked {
		return nil
	}

	if err := sl.lockManager.UnLock(ctx, sl.lockName); err != nil {
		// Lock may have expired naturally, not fatal
		logger.Warn("failed to release session lock",
			zap.String("agent_id", sl.agentID),
			zap.Error(err),
		)
	} else {
		logger.Info("session slot released",
			zap.String("agent_id", sl.agentID),
			zap.String("session_id", sl.sessionID),
		)
	}

	sl.locked = false
	return nil
}

// renew extends the lock at 2/3 of TTL. redlock-go has no native renewal,
// so the lock is cycled via release + acquire.
func (sl *RedSessionLock) renew(ctx context.Context) {
	ticker := time.NewTicker((sl.ttl * 2) / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !sl.locked {
				return
			}

			if err := sl.lockManager.UnLock(ctx, sl.lockName); err != nil {
				logger.Error("session lock renewal failed",
					zap.String("agent_id", sl.agentID),
					zap.Error(err),
				)
				sl.locked = false
				return
			}

			expiry, err := sl.lockManager.Lock(ctx, sl.lockName, sl.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("session lock lost, another pod may have taken over",
					zap.String("agent_id", sl.agentID),
					zap.String("session_id", sl.sessionID),
					zap.Error(err),
				)
				sl.locked = false
				return
			}
		}
	}
}

// NoopSessionLock always succeeds, used when Redis is not configured and
// the database unique index is the only guard
type NoopSessionLock struct{}

func (NoopSessionLock) TryAcquire(ctx context.Context) (bool, error) { return true, nil }
func (NoopSessionLock) Release(ctx context.Context) error            { return nil }
