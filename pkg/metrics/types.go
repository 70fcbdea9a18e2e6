package metrics

import "time"

// CycleMetric records one full agent cycle
type CycleMetric struct {
	Timestamp  time.Time
	AgentID    string
	SessionID  string
	AgentKind  string
	Result     string
	DurationMs int64
	Stages     int
}

func (m *CycleMetric) TableName() string { return "agent_cycles" }

func (m *CycleMetric) Columns() []string {
	return []string{"timestamp", "agent_id", "session_id", "agent_kind", "result", "duration_ms", "stages"}
}

func (m *CycleMetric) Values() []interface{} {
	return []interface{}{m.Timestamp, m.AgentID, m.SessionID, m.AgentKind, m.Result, m.DurationMs, m.Stages}
}

// StageAttemptMetric records one generator attempt inside a stage
type StageAttemptMetric struct {
	Timestamp  time.Time
	AgentID    string
	SessionID  string
	Stage      string
	Attempt    int
	Success    bool
	DurationMs int64
}

func (m *StageAttemptMetric) TableName() string { return "stage_attempts" }

func (m *StageAttemptMetric) Columns() []string {
	return []string{"timestamp", "agent_id", "session_id", "stage", "attempt", "success", "duration_ms"}
}

func (m *StageAttemptMetric) Values() []interface{} {
	return []interface{}{m.Timestamp, m.AgentID, m.SessionID, m.Stage, m.Attempt, m.Success, m.DurationMs}
}

// SandboxRunMetric records one sandboxed execution
type SandboxRunMetric struct {
	Timestamp  time.Time
	AgentID    string
	Postfix    string
	ExitOK     bool
	TimedOut   bool
	DurationMs int64
	OutputLen  int
}

func (m *SandboxRunMetric) TableName() string { return "sandbox_runs" }

func (m *SandboxRunMetric) Columns() []string {
	return []string{"timestamp", "agent_id", "postfix", "exit_ok", "timed_out", "duration_ms", "output_len"}
}

func (m *SandboxRunMetric) Values() []interface{} {
	return []interface{}{m.Timestamp, m.AgentID, m.Postfix, m.ExitOK, m.TimedOut, m.DurationMs, m.OutputLen}
}

// EmbeddingDeduplicationMetric records embedding cache hits/misses
type EmbeddingDeduplicationMetric struct {
	Timestamp    time.Time
	TextHash     string
	TextLength   int
	Model        string
	CacheHit     bool
	CostSavedUSD float64
}

func (m *EmbeddingDeduplicationMetric) TableName() string { return "embedding_deduplication" }

func (m *EmbeddingDeduplicationMetric) Columns() []string {
	return []string{"timestamp", "text_hash", "text_length", "model", "cache_hit", "cost_saved_usd"}
}

func (m *EmbeddingDeduplicationMetric) Values() []interface{} {
	return []interface{}{m.Timestamp, m.TextHash, m.TextLength, m.Model, m.CacheHit, m.CostSavedUSD}
}
