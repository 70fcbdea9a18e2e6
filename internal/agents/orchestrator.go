package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/genai"
	"github.com/selivandex/superagent/internal/prompts"
	"github.com/selivandex/superagent/internal/rag"
	"github.com/selivandex/superagent/internal/sensor"
	"github.com/selivandex/superagent/internal/store"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/metrics"
	"github.com/selivandex/superagent/pkg/models"
)

// Sandbox is the slice of the executor the orchestrator needs. The real
// implementation is internal/sandbox; tests substitute a scripted fake.
type Sandbox interface {
	// RunCode writes and executes the script, returning merged stdout+stderr
	// and the reflected body
	RunCode(ctx context.Context, script, postfix string) (string, string, error)
}

// SemanticIndex is the slice of the rag store the orchestrator needs
type SemanticIndex interface {
	Upsert(ctx context.Context, records []rag.Record) error
	Query(ctx context.Context, text, agentID string, topK int) ([]rag.QueryResult, error)
	Contains(ctx context.Context, agentID, referenceID string) bool
}

// Budgets bounds the retry envelope per stage kind
type Budgets struct {
	Research int
	Strategy int
	Code     int
}

// Config wires one orchestrator instance to its agent identity
type Config struct {
	AgentID     string
	SessionID   string
	Role        string // Marketing persona, e.g. "a witty crypto educator"
	APIs        []string
	Instruments []string
	SignerURL   string
	Assisted    bool
	Budgets     Budgets
	RAGTopK     int // Semantic lookup breadth; values below 1 mean 1
}

// Orchestrator runs the per-cycle state machine for one agent. A cycle is
// strictly sequential; the orchestrator owns the per-cycle chat history and
// never shares it across cycles.
type Orchestrator struct {
	cfg        Config
	registry   *prompts.Registry
	generator  genai.Generator
	sandbox    Sandbox
	store      store.Store
	index      SemanticIndex
	sensor     sensor.Sensor
	summarizer *Summarizer
	buffer     metrics.Buffer // nil disables metric recording
}

// New creates an orchestrator for the registry's agent kind
func New(
	cfg Config,
	registry *prompts.Registry,
	generator genai.Generator,
	sb Sandbox,
	st store.Store,
	index SemanticIndex,
	sn sensor.Sensor,
	buffer metrics.Buffer,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		generator:  generator,
		sandbox:    sb,
		store:      st,
		index:      index,
		sensor:     sn,
		summarizer: NewSummarizer(generator),
		buffer:     buffer,
	}
}

// Kind returns the orchestrator's agent kind
func (o *Orchestrator) Kind() prompts.Kind {
	return o.registry.Kind()
}

// RunCycle dispatches on agent kind
func (o *Orchestrator) RunCycle(ctx context.Context, prior *models.StrategyData, notifStr string) (*models.StrategyData, error) {
	switch o.registry.Kind() {
	case prompts.KindTrading:
		return o.RunTradingCycle(ctx, prior, notifStr)
	case prompts.KindMarketing:
		return o.RunMarketingCycle(ctx, prior, notifStr)
	default:
		return nil, fmt.Errorf("unknown agent kind: %s", o.registry.Kind())
	}
}

// persistOutcome writes the cycle's StrategyData and indexes it. Store write
// failure is fatal to the cycle: the record would otherwise be lost.
func (o *Orchestrator) persistOutcome(ctx context.Context, insert models.StrategyInsertData) (*models.StrategyData, error) {
	data, err := o.store.InsertStrategy(ctx, o.cfg.AgentID, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to persist strategy: %w", err)
	}

	o.indexStrategy(ctx, data)

	logger.Info("📦 Cycle outcome persisted",
		zap.String("agent_id", o.cfg.AgentID),
		zap.Int64("strategy_id", data.StrategyID),
		zap.String("result", string(data.StrategyResult)),
	)

	return data, nil
}

// indexStrategy upserts the strategy into the agent's semantic shard.
// Index failures are logged, never fatal: the store remains the source of
// truth and backfill catches up later.
func (o *Orchestrator) indexStrategy(ctx context.Context, data *models.StrategyData) {
	if data.SummarizedDesc == "" {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		logger.Warn("failed to serialize strategy for indexing", zap.Error(err))
		return
	}

	rec := rag.Record{
		ReferenceID: strategyReferenceID(data),
		AgentID:     data.AgentID,
		SessionID:   o.cfg.SessionID,
		TextKey:     data.SummarizedDesc,
		Payload:     string(payload),
		CreatedAt:   data.CreatedAt,
	}
	if err := o.index.Upsert(ctx, []rag.Record{rec}); err != nil {
		logger.Warn("failed to index strategy",
			zap.Int64("strategy_id", data.StrategyID),
			zap.Error(err),
		)
	}
}

// persistChatDelta best-effort persists a generation's message delta.
// Durability beyond best effort is a non-goal.
func (o *Orchestrator) persistChatDelta(ctx context.Context, delta models.ChatHistory) {
	if err := o.store.InsertChatHistory(ctx, o.cfg.SessionID, delta, nil); err != nil {
		logger.Warn("failed to persist chat history", zap.Error(err))
	}
}

func (o *Orchestrator) recordStageAttempt(stage string, attempt int, success bool, started time.Time) {
	if o.buffer == nil {
		return
	}
	_ = o.buffer.Add(&metrics.StageAttemptMetric{
		Timestamp:  time.Now().UTC(),
		AgentID:    o.cfg.AgentID,
		SessionID:  o.cfg.SessionID,
		Stage:      stage,
		Attempt:    attempt,
		Success:    success,
		DurationMs: time.Since(started).Milliseconds(),
	})
}

func (o *Orchestrator) recordSandboxRun(postfix string, exitOK, timedOut bool, outputLen int, started time.Time) {
	if o.buffer == nil {
		return
	}
	_ = o.buffer.Add(&metrics.SandboxRunMetric{
		Timestamp:  time.Now().UTC(),
		AgentID:    o.cfg.AgentID,
		Postfix:    postfix,
		ExitOK:     exitOK,
		TimedOut:   timedOut,
		DurationMs: time.Since(started).Milliseconds(),
		OutputLen:  outputLen,
	})
}

func strategyReferenceID(data *models.StrategyData) string {
	return fmt.Sprintf("%s-%d", data.AgentID, data.StrategyID)
}

func nowUTC() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
