package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
)

const (
	v4Prefix       = "strategies-v4-"
	v1Prefix       = "strategies-v1-"
	addConcurrency = 4
)

// Record is one indexed strategy. Payload is opaque to the index (typically
// a serialized StrategyData); TextKey is the string the embedding is
// computed on.
type Record struct {
	ReferenceID string
	AgentID     string
	SessionID   string
	TextKey     string
	Payload     string
	CreatedAt   time.Time
}

// QueryResult pairs a stored payload with its cosine distance to the query
type QueryResult struct {
	Payload  string
	Distance float32
}

// Index is the per-agent semantic store over chromem shards persisted on
// disk. Writes land in the per-agent (v4) shard; queries union every shard
// known for the agent, v1 per-session shards included. A single writer per
// agent is assumed.
type Index struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

// New opens (or creates) the persistent shard store rooted at dir
func New(dir string, embed chromem.EmbeddingFunc) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open semantic index at %s: %w", dir, err)
	}

	logger.Info("semantic index opened",
		zap.String("dir", dir),
		zap.Int("shards", len(db.ListCollections())),
	)

	return &Index{db: db, embed: embed}, nil
}

// Upsert indexes the batch into each record's per-agent shard. Shards are
// created lazily on first write.
func (ix *Index) Upsert(ctx context.Context, records []Record) error {
	byShard := make(map[string][]Record)
	for _, rec := range records {
		byShard[v4Prefix+rec.AgentID] = append(byShard[v4Prefix+rec.AgentID], rec)
	}
	return ix.upsertShards(ctx, byShard)
}

// UpsertSession indexes the batch into per-session (v1) shards
func (ix *Index) UpsertSession(ctx context.Context, records []Record) error {
	byShard := make(map[string][]Record)
	for _, rec := range records {
		name := v1Prefix + rec.AgentID + "-" + rec.SessionID
		byShard[name] = append(byShard[name], rec)
	}
	return ix.upsertShards(ctx, byShard)
}

// Contains reports whether the agent's v4 shard already holds the reference
func (ix *Index) Contains(ctx context.Context, agentID, referenceID string) bool {
	coll := ix.db.GetCollection(v4Prefix+agentID, ix.embed)
	if coll == nil {
		return false
	}
	doc, err := coll.GetByID(ctx, referenceID)
	return err == nil && doc.ID == referenceID
}

// Query returns the topK nearest payloads for the agent across all of its
// shards, ranked by cosine distance ascending. No shards means an empty
// result, not an error.
func (ix *Index) Query(ctx context.Context, text, agentID string, topK int) ([]QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	var merged []QueryResult
	for name, coll := range ix.db.ListCollections() {
		if !shardBelongsTo(name, agentID) {
			continue
		}

		n := topK
		if count := coll.Count(); count < n {
			n = count
		}
		if n == 0 {
			continue
		}

		results, err := coll.Query(ctx, text, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("shard %s query failed: %w", name, err)
		}
		for _, res := range results {
			merged = append(merged, QueryResult{
				Payload:  res.Metadata["payload"],
				Distance: 1 - res.Similarity,
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}

	logger.Debug("semantic query",
		zap.String("agent_id", agentID),
		zap.Int("top_k", topK),
		zap.Int("results", len(merged)),
	)

	return merged, nil
}

func (ix *Index) upsertShards(ctx context.Context, byShard map[string][]Record) error {
	for name, recs := range byShard {
		coll, err := ix.db.GetOrCreateCollection(name, nil, ix.embed)
		if err != nil {
			return fmt.Errorf("failed to open shard %s: %w", name, err)
		}

		docs := make([]chromem.Document, 0, len(recs))
		ids := make([]string, 0, len(recs))
		for _, rec := range recs {
			ids = append(ids, rec.ReferenceID)
			docs = append(docs, chromem.Document{
				ID:      rec.ReferenceID,
				Content: rec.TextKey,
				Metadata: map[string]string{
					"agent_id":   rec.AgentID,
					"session_id": rec.SessionID,
					"payload":    rec.Payload,
					"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
				},
			})
		}

		// Re-adding an existing reference replaces it
		if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
			logger.Debug("shard pre-delete failed", zap.String("shard", name), zap.Error(err))
		}
		if err := coll.AddDocuments(ctx, docs, addConcurrency); err != nil {
			return fmt.Errorf("failed to index into shard %s: %w", name, err)
		}
	}
	return nil
}

func shardBelongsTo(name, agentID string) bool {
	return name == v4Prefix+agentID || strings.HasPrefix(name, v1Prefix+agentID+"-")
}
