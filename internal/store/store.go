package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/selivandex/superagent/pkg/models"
)

// TimestampFormat is the chat-history persistence timestamp layout
const TimestampFormat = "2006-01-02 15:04:05"

// AllowedSources is the notification source allow-list. Requests naming any
// source outside it fall back to two randomly chosen allowed sources.
var AllowedSources = []string{
	"twitter_mentions",
	"twitter_feed",
	"coingecko_news",
	"coinmarketcap_news",
	"onchain_txns",
}

// StoreError reports an outcome-store failure. Writes are fatal to the
// cycle; readers degrade to defaults.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store is the outcome persistence contract shared by the Postgres, HTTP and
// in-memory backends
type Store interface {
	// InsertStrategy records a cycle outcome; the store assigns a strictly
	// increasing per-agent strategy id
	InsertStrategy(ctx context.Context, agentID string, data models.StrategyInsertData) (*models.StrategyData, error)

	// FetchLatestStrategy returns the newest strategy for the agent
	// (largest strategy id), or nil when none exists
	FetchLatestStrategy(ctx context.Context, agentID string) (*models.StrategyData, error)

	// FetchAllStrategies returns every strategy for the agent, id ascending
	FetchAllStrategies(ctx context.Context, agentID string) ([]models.StrategyData, error)

	// InsertChatHistory persists the messages with per-message timestamps
	// derived from base (or now) plus the message index in seconds
	InsertChatHistory(ctx context.Context, sessionID string, history models.ChatHistory, base *time.Time) error

	// FetchLatestNotificationStr returns newline-joined recent long
	// descriptions per the source policy
	FetchLatestNotificationStr(ctx context.Context, sources []string, limit int) (string, error)

	// InsertNotificationsBatch inserts records idempotently on
	// (relative_to_scraper_id) OR (long_desc) and returns the ids of the
	// newly inserted rows
	InsertNotificationsBatch(ctx context.Context, records []models.NotificationRecord) ([]int64, error)

	// CreateSession creates a session row, or marks an existing row with
	// the same id running again
	CreateSession(ctx context.Context, session models.SessionState) error

	// UpdateSessionStatus transitions a session's status
	UpdateSessionStatus(ctx context.Context, sessionID, agentID, status string) error

	// IncrementCycleCount bumps the session's cycle counter
	IncrementCycleCount(ctx context.Context, sessionID, agentID string) error

	// GetSession returns the session row, or nil when absent
	GetSession(ctx context.Context, sessionID, agentID string) (*models.SessionState, error)
}

// resolveSources applies the allow-list fallback: any unknown requested
// source replaces the whole request with two random allowed sources
func resolveSources(requested []string) []string {
	allowed := make(map[string]struct{}, len(AllowedSources))
	for _, s := range AllowedSources {
		allowed[s] = struct{}{}
	}

	valid := len(requested) > 0
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			valid = false
			break
		}
	}
	if valid {
		return requested
	}

	perm := rand.Perm(len(AllowedSources))
	return []string{AllowedSources[perm[0]], AllowedSources[perm[1]]}
}

// buildNotificationStr groups records by source, keeps up to limit
// most-recent long descriptions per source (deduplicated), and joins them
// with newlines
func buildNotificationStr(records []models.NotificationRecord, sources []string, limit int) string {
	bySource := make(map[string][]models.NotificationRecord)
	for _, rec := range records {
		bySource[rec.Source] = append(bySource[rec.Source], rec)
	}

	var lines []string
	for _, source := range sources {
		recs := bySource[source]
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].NotificationDate.After(recs[j].NotificationDate)
		})

		seen := make(map[string]struct{})
		count := 0
		for _, rec := range recs {
			if count >= limit {
				break
			}
			if rec.LongDesc == "" {
				continue
			}
			if _, dup := seen[rec.LongDesc]; dup {
				continue
			}
			seen[rec.LongDesc] = struct{}{}
			lines = append(lines, rec.LongDesc)
			count++
		}
	}

	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}
