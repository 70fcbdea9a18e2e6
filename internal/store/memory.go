package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/selivandex/superagent/pkg/models"
)

// MemoryStore is the in-process backend. Used by tests and by
// credential-less runs; mirrors the Postgres semantics including monotonic
// per-agent strategy ids.
type MemoryStore struct {
	mu            sync.RWMutex
	strategies    map[string][]models.StrategyData // agentID -> id ascending
	nextID        map[string]int64
	chatRows      map[string][]chatRow // sessionID -> rows
	notifications []models.NotificationRecord
	nextNotifID   int64
	sessions      map[string]*models.SessionState // sessionID|agentID -> state
}

type chatRow struct {
	Role      string
	Content   string
	Timestamp string
}

// NewMemoryStore creates new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strategies: make(map[string][]models.StrategyData),
		nextID:     make(map[string]int64),
		chatRows:   make(map[string][]chatRow),
		sessions:   make(map[string]*models.SessionState),
	}
}

// InsertStrategy records a cycle outcome
func (m *MemoryStore) InsertStrategy(ctx context.Context, agentID string, data models.StrategyInsertData) (*models.StrategyData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID[agentID]++
	params := make(map[string]string, len(data.Parameters))
	for k, v := range data.Parameters {
		params[k] = v
	}

	row := models.StrategyData{
		StrategyID:     m.nextID[agentID],
		AgentID:        agentID,
		SummarizedDesc: data.SummarizedDesc,
		FullDesc:       data.FullDesc,
		Parameters:     params,
		StrategyResult: data.StrategyResult,
		CreatedAt:      time.Now(),
	}
	m.strategies[agentID] = append(m.strategies[agentID], row)

	out := row
	return &out, nil
}

// FetchLatestStrategy returns the strategy with the largest id, or nil
func (m *MemoryStore) FetchLatestStrategy(ctx context.Context, agentID string) (*models.StrategyData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.strategies[agentID]
	if len(rows) == 0 {
		return nil, nil
	}
	out := rows[len(rows)-1]
	return &out, nil
}

// FetchAllStrategies returns every strategy, id ascending
func (m *MemoryStore) FetchAllStrategies(ctx context.Context, agentID string) ([]models.StrategyData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.strategies[agentID]
	out := make([]models.StrategyData, len(rows))
	copy(out, rows)
	return out, nil
}

// InsertChatHistory persists messages with derived timestamps
func (m *MemoryStore) InsertChatHistory(ctx context.Context, sessionID string, history models.ChatHistory, base *time.Time) error {
	start := time.Now()
	if base != nil {
		start = *base
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, msg := range history.AsNative() {
		m.chatRows[sessionID] = append(m.chatRows[sessionID], chatRow{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: start.Add(time.Duration(i) * time.Second).Format(TimestampFormat),
		})
	}
	return nil
}

// ChatMessageCount reports persisted messages for a session (test hook)
func (m *MemoryStore) ChatMessageCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chatRows[sessionID])
}

// FetchLatestNotificationStr applies the source policy over stored records
func (m *MemoryStore) FetchLatestNotificationStr(ctx context.Context, sources []string, limit int) (string, error) {
	m.mu.RLock()
	records := make([]models.NotificationRecord, len(m.notifications))
	copy(records, m.notifications)
	m.mu.RUnlock()

	resolved := resolveSources(sources)
	return buildNotificationStr(records, resolved, limit), nil
}

// InsertNotificationsBatch inserts records with OR-dedup semantics
func (m *MemoryStore) InsertNotificationsBatch(ctx context.Context, records []models.NotificationRecord) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted []int64
	for _, rec := range records {
		if m.isDuplicate(rec) {
			continue
		}
		m.nextNotifID++
		rec.ID = m.nextNotifID
		m.notifications = append(m.notifications, rec)
		inserted = append(inserted, rec.ID)
	}
	return inserted, nil
}

func (m *MemoryStore) isDuplicate(rec models.NotificationRecord) bool {
	for _, existing := range m.notifications {
		if rec.RelativeToScraperID != "" && existing.RelativeToScraperID == rec.RelativeToScraperID {
			return true
		}
		if existing.LongDesc == rec.LongDesc {
			return true
		}
	}
	return false
}

// CreateSession creates or re-marks a session as running
func (m *MemoryStore) CreateSession(ctx context.Context, session models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.Status == models.SessionRunning {
		for _, existing := range m.sessions {
			if existing.AgentID == session.AgentID &&
				existing.SessionID != session.SessionID &&
				existing.Status == models.SessionRunning {
				return &StoreError{Op: "create session", Err: fmt.Errorf("agent %s already has a running session", session.AgentID)}
			}
		}
	}

	key := sessionKey(session.SessionID, session.AgentID)
	if existing, ok := m.sessions[key]; ok {
		existing.Status = models.SessionRunning
		existing.EndedAt = nil
		return nil
	}

	copied := session
	m.sessions[key] = &copied
	return nil
}

// UpdateSessionStatus transitions a session's status
func (m *MemoryStore) UpdateSessionStatus(ctx context.Context, sessionID, agentID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionKey(sessionID, agentID)]
	if !ok {
		return &StoreError{Op: "update session", Err: fmt.Errorf("session %s not found", sessionID)}
	}
	session.Status = status
	if status == models.SessionStopped {
		now := time.Now()
		session.EndedAt = &now
	}
	return nil
}

// IncrementCycleCount bumps the session cycle counter
func (m *MemoryStore) IncrementCycleCount(ctx context.Context, sessionID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionKey(sessionID, agentID)]
	if !ok {
		return &StoreError{Op: "increment cycle count", Err: fmt.Errorf("session %s not found", sessionID)}
	}
	session.CycleCount++
	return nil
}

// GetSession returns the session row, or nil
func (m *MemoryStore) GetSession(ctx context.Context, sessionID, agentID string) (*models.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionKey(sessionID, agentID)]
	if !ok {
		return nil, nil
	}
	out := *session
	return &out, nil
}

func sessionKey(sessionID, agentID string) string {
	return sessionID + "|" + agentID
}
