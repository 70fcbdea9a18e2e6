package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/notifications"
	"github.com/selivandex/superagent/internal/prompts"
	"github.com/selivandex/superagent/internal/rag"
	"github.com/selivandex/superagent/internal/store"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/metrics"
	"github.com/selivandex/superagent/pkg/models"
)

// Per-source notification limits per agent kind
const (
	tradingNotifLimit   = 5
	marketingNotifLimit = 2
)

// SessionGuard is the cross-process session exclusivity lock. The Redis
// redlock adapter implements it; a noop guard serves single-process runs.
type SessionGuard interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Driver owns the outer loop for one agent: session bootstrap, per-cycle
// prior-strategy and notification fetch, cycle invocation, cycle counting.
// It implements worker.Worker so pkg/worker provides the pacing.
type Driver struct {
	orch       *Orchestrator
	store      store.Store
	index      SemanticIndex
	guard      SessionGuard
	buffer     metrics.Buffer
	notifier   *notifications.Client // nil when no scraper service is configured
	sources    []string
	notifLimit int
}

// NewDriver creates the driver for the orchestrator's agent
func NewDriver(orch *Orchestrator, st store.Store, index SemanticIndex, guard SessionGuard, buffer metrics.Buffer, notifier *notifications.Client) *Driver {
	limit := tradingNotifLimit
	if orch.Kind() == prompts.KindMarketing {
		limit = marketingNotifLimit
	}
	return &Driver{
		orch:       orch,
		store:      st,
		index:      index,
		guard:      guard,
		buffer:     buffer,
		notifier:   notifier,
		sources:    allowedSources(),
		notifLimit: limit,
	}
}

// Name returns worker name for logging
func (d *Driver) Name() string {
	return fmt.Sprintf("agent-%s-%s", d.orch.Kind(), d.orch.cfg.AgentID)
}

// Bootstrap claims the session slot, ensures the session row is running,
// and backfills the semantic index for trading agents
func (d *Driver) Bootstrap(ctx context.Context) error {
	ok, err := d.guard.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire session slot: %w", err)
	}
	if !ok {
		return fmt.Errorf("agent %s already has a running session", d.orch.cfg.AgentID)
	}

	existing, err := d.store.GetSession(ctx, d.orch.cfg.SessionID, d.orch.cfg.AgentID)
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if existing != nil {
		if err := d.store.UpdateSessionStatus(ctx, d.orch.cfg.SessionID, d.orch.cfg.AgentID, models.SessionRunning); err != nil {
			return fmt.Errorf("failed to resume session: %w", err)
		}
	} else {
		session := models.SessionState{
			SessionID: d.orch.cfg.SessionID,
			AgentID:   d.orch.cfg.AgentID,
			StartedAt: time.Now().UTC(),
			Status:    models.SessionRunning,
		}
		if err := d.store.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	if d.orch.Kind() == prompts.KindTrading {
		if err := d.backfillIndex(ctx); err != nil {
			logger.Warn("semantic index backfill failed", zap.Error(err))
		}
	}

	logger.Info("🚀 Session bootstrapped",
		zap.String("agent_id", d.orch.cfg.AgentID),
		zap.String("session_id", d.orch.cfg.SessionID),
		zap.String("kind", string(d.orch.Kind())),
	)

	return nil
}

// Run executes one cycle. Errors are returned for the worker to log; the
// loop continues regardless.
func (d *Driver) Run(ctx context.Context) error {
	started := time.Now()

	prior, err := d.store.FetchLatestStrategy(ctx, d.orch.cfg.AgentID)
	if err != nil {
		// Read failures degrade to "no prior strategy"
		logger.Warn("failed to fetch prior strategy", zap.Error(err))
		prior = nil
	}
	if prior != nil && !d.index.Contains(ctx, prior.AgentID, strategyReferenceID(prior)) {
		d.orch.indexStrategy(ctx, prior)
	}

	d.mirrorNotifications(ctx)

	notifStr, err := d.store.FetchLatestNotificationStr(ctx, d.sources, d.notifLimit)
	if err != nil {
		logger.Warn("failed to fetch notifications", zap.Error(err))
		notifStr = ""
	}

	outcome, err := d.orch.RunCycle(ctx, prior, notifStr)
	d.recordCycle(outcome, started)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	if err := d.store.IncrementCycleCount(ctx, d.orch.cfg.SessionID, d.orch.cfg.AgentID); err != nil {
		logger.Warn("failed to increment cycle count", zap.Error(err))
	}

	return nil
}

// Close releases the session slot and marks the session stopped
func (d *Driver) Close(ctx context.Context) error {
	if err := d.store.UpdateSessionStatus(ctx, d.orch.cfg.SessionID, d.orch.cfg.AgentID, models.SessionStopped); err != nil {
		logger.Warn("failed to mark session stopped", zap.Error(err))
	}
	return d.guard.Release(ctx)
}

// backfillIndex loads every prior strategy into the agent's v4 shard so the
// first cycle already queries over full history
func (d *Driver) backfillIndex(ctx context.Context) error {
	strategies, err := d.store.FetchAllStrategies(ctx, d.orch.cfg.AgentID)
	if err != nil {
		return err
	}

	var records []rag.Record
	for i := range strategies {
		data := &strategies[i]
		if data.SummarizedDesc == "" {
			continue
		}
		refID := strategyReferenceID(data)
		if d.index.Contains(ctx, data.AgentID, refID) {
			continue
		}
		payload, err := json.Marshal(data)
		if err != nil {
			continue
		}
		records = append(records, rag.Record{
			ReferenceID: refID,
			AgentID:     data.AgentID,
			SessionID:   d.orch.cfg.SessionID,
			TextKey:     data.SummarizedDesc,
			Payload:     string(payload),
			CreatedAt:   data.CreatedAt,
		})
	}
	if len(records) == 0 {
		return nil
	}

	if err := d.index.Upsert(ctx, records); err != nil {
		return err
	}

	logger.Info("semantic index backfilled",
		zap.String("agent_id", d.orch.cfg.AgentID),
		zap.Int("records", len(records)),
	)

	return nil
}

// mirrorNotifications pulls recent records from the scraper service into the
// local store. The store dedups, so mirroring the same window twice is safe.
// Failures degrade to whatever the store already holds.
func (d *Driver) mirrorNotifications(ctx context.Context) {
	if d.notifier == nil {
		return
	}

	records, err := d.notifier.FetchLatest(ctx, d.sources, d.notifLimit)
	if err != nil {
		logger.Warn("notification mirror fetch failed", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}
	if _, err := d.store.InsertNotificationsBatch(ctx, records); err != nil {
		logger.Warn("notification mirror insert failed", zap.Error(err))
	}
}

func (d *Driver) recordCycle(outcome *models.StrategyData, started time.Time) {
	if d.buffer == nil {
		return
	}
	result := "error"
	if outcome != nil {
		result = string(outcome.StrategyResult)
	}
	_ = d.buffer.Add(&metrics.CycleMetric{
		Timestamp:  time.Now().UTC(),
		AgentID:    d.orch.cfg.AgentID,
		SessionID:  d.orch.cfg.SessionID,
		AgentKind:  string(d.orch.Kind()),
		Result:     result,
		DurationMs: time.Since(started).Milliseconds(),
	})
}

// allowedSources copies the store allow-list so a caller can never mutate it
func allowedSources() []string {
	out := make([]string, len(store.AllowedSources))
	copy(out, store.AllowedSources)
	return out
}
