package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// PostgresStore is the primary outcome store backend
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates new Postgres-backed store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertStrategy records a cycle outcome. BIGSERIAL ids are globally
// monotonic, which satisfies the per-agent strictly-increasing ordering.
func (s *PostgresStore) InsertStrategy(ctx context.Context, agentID string, data models.StrategyInsertData) (*models.StrategyData, error) {
	paramsJSON, err := json.Marshal(data.Parameters)
	if err != nil {
		return nil, &StoreError{Op: "marshal parameters", Err: err}
	}

	query := `
		INSERT INTO strategies (agent_id, summarized_desc, full_desc, parameters, strategy_result)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING strategy_id, created_at
	`

	row := models.StrategyData{
		AgentID:        agentID,
		SummarizedDesc: data.SummarizedDesc,
		FullDesc:       data.FullDesc,
		Parameters:     data.Parameters,
		StrategyResult: data.StrategyResult,
	}

	err = s.db.QueryRowContext(ctx, query,
		agentID,
		data.SummarizedDesc,
		data.FullDesc,
		paramsJSON,
		string(data.StrategyResult),
	).Scan(&row.StrategyID, &row.CreatedAt)
	if err != nil {
		return nil, &StoreError{Op: "insert strategy", Err: err}
	}

	logger.Debug("strategy persisted",
		zap.String("agent_id", agentID),
		zap.Int64("strategy_id", row.StrategyID),
		zap.String("result", string(row.StrategyResult)),
	)

	return &row, nil
}

// FetchLatestStrategy returns the strategy with the largest id, or nil
func (s *PostgresStore) FetchLatestStrategy(ctx context.Context, agentID string) (*models.StrategyData, error) {
	query := `
		SELECT strategy_id, agent_id, summarized_desc, full_desc, parameters, strategy_result, created_at
		FROM strategies
		WHERE agent_id = $1
		ORDER BY strategy_id DESC
		LIMIT 1
	`

	row, err := s.scanStrategy(s.db.QueryRowContext(ctx, query, agentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "fetch latest strategy", Err: err}
	}
	return row, nil
}

// FetchAllStrategies returns every strategy for the agent, id ascending
func (s *PostgresStore) FetchAllStrategies(ctx context.Context, agentID string) ([]models.StrategyData, error) {
	query := `
		SELECT strategy_id, agent_id, summarized_desc, full_desc, parameters, strategy_result, created_at
		FROM strategies
		WHERE agent_id = $1
		ORDER BY strategy_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, &StoreError{Op: "fetch all strategies", Err: err}
	}
	defer rows.Close()

	var out []models.StrategyData
	for rows.Next() {
		row, err := s.scanStrategy(rows)
		if err != nil {
			return nil, &StoreError{Op: "scan strategy", Err: err}
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

// InsertChatHistory persists messages with derived timestamps
func (s *PostgresStore) InsertChatHistory(ctx context.Context, sessionID string, history models.ChatHistory, base *time.Time) error {
	if history.Len() == 0 {
		return nil
	}

	start := time.Now()
	if base != nil {
		start = *base
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "begin chat tx", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, message_timestamp)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return &StoreError{Op: "prepare chat insert", Err: err}
	}
	defer stmt.Close()

	for i, msg := range history.AsNative() {
		ts := start.Add(time.Duration(i) * time.Second).Format(TimestampFormat)
		if _, err := stmt.ExecContext(ctx, sessionID, msg.Role, msg.Content, ts); err != nil {
			return &StoreError{Op: "insert chat message", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit chat tx", Err: err}
	}
	return nil
}

// FetchLatestNotificationStr applies the source policy over stored records
func (s *PostgresStore) FetchLatestNotificationStr(ctx context.Context, sources []string, limit int) (string, error) {
	resolved := resolveSources(sources)

	query := `
		SELECT id, source, short_desc, long_desc, notification_date,
		       COALESCE(relative_to_scraper_id, ''), COALESCE(bot_username, '')
		FROM notifications
		WHERE source = ANY($1)
		ORDER BY notification_date DESC
		LIMIT 500
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(resolved))
	if err != nil {
		return "", &StoreError{Op: "fetch notifications", Err: err}
	}
	defer rows.Close()

	var records []models.NotificationRecord
	for rows.Next() {
		var rec models.NotificationRecord
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.ShortDesc, &rec.LongDesc,
			&rec.NotificationDate, &rec.RelativeToScraperID, &rec.BotUsername); err != nil {
			return "", &StoreError{Op: "scan notification", Err: err}
		}
		records = append(records, rec)
	}

	return buildNotificationStr(records, resolved, limit), rows.Err()
}

// InsertNotificationsBatch inserts records idempotently: a record whose
// relative_to_scraper_id OR long_desc already exists is skipped
func (s *PostgresStore) InsertNotificationsBatch(ctx context.Context, records []models.NotificationRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &StoreError{Op: "begin notifications tx", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (source, short_desc, long_desc, notification_date, relative_to_scraper_id, bot_username)
		SELECT $1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, '')
		WHERE NOT EXISTS (
			SELECT 1 FROM notifications
			WHERE ($5 <> '' AND relative_to_scraper_id = $5) OR long_desc = $3
		)
		RETURNING id
	`)
	if err != nil {
		return nil, &StoreError{Op: "prepare notification insert", Err: err}
	}
	defer stmt.Close()

	var inserted []int64
	for _, rec := range records {
		var id int64
		err := stmt.QueryRowContext(ctx,
			rec.Source, rec.ShortDesc, rec.LongDesc, rec.NotificationDate,
			rec.RelativeToScraperID, rec.BotUsername,
		).Scan(&id)
		if err == sql.ErrNoRows {
			continue // duplicate
		}
		if err != nil {
			return nil, &StoreError{Op: "insert notification", Err: err}
		}
		inserted = append(inserted, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, &StoreError{Op: "commit notifications tx", Err: err}
	}
	return inserted, nil
}

// CreateSession creates a session row or re-marks an existing one running.
// A partial unique index on (agent_id) WHERE status = 'running' enforces the
// single-running-session invariant.
func (s *PostgresStore) CreateSession(ctx context.Context, session models.SessionState) error {
	query := `
		INSERT INTO sessions (session_id, agent_id, started_at, status, cycle_count, will_end_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, agent_id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = NULL
	`

	_, err := s.db.ExecContext(ctx, query,
		session.SessionID, session.AgentID, session.StartedAt,
		session.Status, session.CycleCount, session.WillEndAt,
	)
	if err != nil {
		return &StoreError{Op: "create session", Err: err}
	}
	return nil
}

// UpdateSessionStatus transitions a session's status
func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, sessionID, agentID, status string) error {
	query := `
		UPDATE sessions
		SET status = $3,
		    ended_at = CASE WHEN $3 = 'stopped' THEN NOW() ELSE ended_at END
		WHERE session_id = $1 AND agent_id = $2
	`

	res, err := s.db.ExecContext(ctx, query, sessionID, agentID, status)
	if err != nil {
		return &StoreError{Op: "update session status", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StoreError{Op: "update session status", Err: fmt.Errorf("session %s not found", sessionID)}
	}
	return nil
}

// IncrementCycleCount bumps the session cycle counter
func (s *PostgresStore) IncrementCycleCount(ctx context.Context, sessionID, agentID string) error {
	query := `UPDATE sessions SET cycle_count = cycle_count + 1 WHERE session_id = $1 AND agent_id = $2`

	if _, err := s.db.ExecContext(ctx, query, sessionID, agentID); err != nil {
		return &StoreError{Op: "increment cycle count", Err: err}
	}
	return nil
}

// GetSession returns the session row, or nil
func (s *PostgresStore) GetSession(ctx context.Context, sessionID, agentID string) (*models.SessionState, error) {
	query := `
		SELECT session_id, agent_id, started_at, ended_at, status, cycle_count, will_end_at
		FROM sessions
		WHERE session_id = $1 AND agent_id = $2
	`

	var session models.SessionState
	err := s.db.QueryRowContext(ctx, query, sessionID, agentID).Scan(
		&session.SessionID, &session.AgentID, &session.StartedAt,
		&session.EndedAt, &session.Status, &session.CycleCount, &session.WillEndAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get session", Err: err}
	}
	return &session, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanStrategy(row rowScanner) (*models.StrategyData, error) {
	var out models.StrategyData
	var paramsJSON []byte
	var result string

	err := row.Scan(&out.StrategyID, &out.AgentID, &out.SummarizedDesc,
		&out.FullDesc, &paramsJSON, &result, &out.CreatedAt)
	if err != nil {
		return nil, err
	}

	out.StrategyResult = models.StrategyResult(result)
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &out.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
		}
	}
	return &out, nil
}
