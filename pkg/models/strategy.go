package models

import "time"

// StrategyResult tags the overall outcome of a cycle
type StrategyResult string

const (
	ResultSuccess StrategyResult = "success"
	ResultFailed  StrategyResult = "failed"
)

// StrategyData is one recorded cycle outcome. Immutable once written;
// StrategyID is assigned by the outcome store and strictly increases
// per agent.
type StrategyData struct {
	StrategyID     int64             `json:"strategy_id" db:"strategy_id"`
	AgentID        string            `json:"agent_id" db:"agent_id"`
	SummarizedDesc string            `json:"summarized_desc" db:"summarized_desc"`
	FullDesc       string            `json:"full_desc" db:"full_desc"`
	Parameters     map[string]string `json:"parameters" db:"-"`
	StrategyResult StrategyResult    `json:"strategy_result" db:"strategy_result"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// StrategyInsertData is the write-side projection of StrategyData; the store
// assigns StrategyID and CreatedAt
type StrategyInsertData struct {
	SummarizedDesc string            `json:"summarized_desc"`
	FullDesc       string            `json:"full_desc"`
	Parameters     map[string]string `json:"parameters"`
	StrategyResult StrategyResult    `json:"strategy_result"`
}
