package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/selivandex/superagent/pkg/models"
)

func TestMemoryStoreStrategies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	t.Run("ids are monotonic per agent", func(t *testing.T) {
		first, err := m.InsertStrategy(ctx, "agent_a", models.StrategyInsertData{
			SummarizedDesc: "buy weth dips",
			FullDesc:       "full text one",
			StrategyResult: models.ResultSuccess,
		})
		if err != nil {
			t.Fatal(err)
		}
		second, err := m.InsertStrategy(ctx, "agent_a", models.StrategyInsertData{
			SummarizedDesc: "rotate into stables",
			FullDesc:       "full text two",
			StrategyResult: models.ResultFailed,
		})
		if err != nil {
			t.Fatal(err)
		}
		other, err := m.InsertStrategy(ctx, "agent_b", models.StrategyInsertData{
			SummarizedDesc: "post a thread",
			StrategyResult: models.ResultSuccess,
		})
		if err != nil {
			t.Fatal(err)
		}

		if first.StrategyID != 1 || second.StrategyID != 2 {
			t.Errorf("agent_a ids = %d, %d; want 1, 2", first.StrategyID, second.StrategyID)
		}
		if other.StrategyID != 1 {
			t.Errorf("agent_b id = %d; want its own counter starting at 1", other.StrategyID)
		}
	})

	t.Run("latest matches last insert", func(t *testing.T) {
		latest, err := m.FetchLatestStrategy(ctx, "agent_a")
		if err != nil {
			t.Fatal(err)
		}
		if latest == nil || latest.SummarizedDesc != "rotate into stables" {
			t.Errorf("latest = %+v", latest)
		}
		if latest.StrategyResult != models.ResultFailed {
			t.Errorf("result = %q", latest.StrategyResult)
		}
	})

	t.Run("no strategies means nil, not error", func(t *testing.T) {
		latest, err := m.FetchLatestStrategy(ctx, "agent_unknown")
		if err != nil {
			t.Fatal(err)
		}
		if latest != nil {
			t.Errorf("latest = %+v, want nil", latest)
		}
	})

	t.Run("fetch all preserves order", func(t *testing.T) {
		all, err := m.FetchAllStrategies(ctx, "agent_a")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[0].StrategyID != 1 || all[1].StrategyID != 2 {
			t.Errorf("all = %+v", all)
		}
	})
}

func TestMemoryStoreNotifications(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	seed := func(t *testing.T) *MemoryStore {
		t.Helper()
		m := NewMemoryStore()
		records := []models.NotificationRecord{
			{Source: "twitter_feed", LongDesc: "tweet about pepe", NotificationDate: now.Add(-3 * time.Minute)},
			{Source: "twitter_feed", LongDesc: "tweet about weth", NotificationDate: now.Add(-2 * time.Minute)},
			{Source: "twitter_feed", LongDesc: "tweet about usdc", NotificationDate: now.Add(-1 * time.Minute)},
			{Source: "coingecko_news", LongDesc: "eth etf approved", NotificationDate: now},
		}
		if _, err := m.InsertNotificationsBatch(ctx, records); err != nil {
			t.Fatal(err)
		}
		return m
	}

	t.Run("per-source limit, newest first", func(t *testing.T) {
		m := seed(t)
		out, err := m.FetchLatestNotificationStr(ctx, []string{"twitter_feed"}, 2)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(out, "\n")
		if len(lines) != 2 {
			t.Fatalf("got %d lines: %q", len(lines), out)
		}
		if lines[0] != "tweet about usdc" || lines[1] != "tweet about weth" {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("unknown source falls back to two allowed sources", func(t *testing.T) {
		m := seed(t)
		out, err := m.FetchLatestNotificationStr(ctx, []string{"moon_phase"}, 2)
		if err != nil {
			t.Fatal(err)
		}
		// Two random sources, at most limit lines each
		lines := 0
		if out != "" {
			lines = len(strings.Split(out, "\n"))
		}
		if lines > 4 {
			t.Errorf("fallback produced %d lines, want at most 4: %q", lines, out)
		}
		for _, line := range strings.Split(out, "\n") {
			if line != "" && !strings.HasPrefix(line, "tweet about") && line != "eth etf approved" {
				t.Errorf("unexpected line %q", line)
			}
		}
	})

	t.Run("empty request falls back too", func(t *testing.T) {
		m := seed(t)
		if _, err := m.FetchLatestNotificationStr(ctx, nil, 2); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("dedup on scraper id or long desc", func(t *testing.T) {
		m := NewMemoryStore()
		ids, err := m.InsertNotificationsBatch(ctx, []models.NotificationRecord{
			{Source: "twitter_feed", LongDesc: "first", RelativeToScraperID: "tw-1", NotificationDate: now},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 1 {
			t.Fatalf("first insert ids = %v", ids)
		}

		dup, err := m.InsertNotificationsBatch(ctx, []models.NotificationRecord{
			{Source: "twitter_feed", LongDesc: "changed text", RelativeToScraperID: "tw-1", NotificationDate: now},
			{Source: "twitter_feed", LongDesc: "first", RelativeToScraperID: "tw-2", NotificationDate: now},
			{Source: "twitter_feed", LongDesc: "second", RelativeToScraperID: "tw-3", NotificationDate: now},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(dup) != 1 {
			t.Errorf("dup batch inserted %d rows, want 1 (only the genuinely new one)", len(dup))
		}
	})
}

func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("one running session per agent", func(t *testing.T) {
		m := NewMemoryStore()
		if err := m.CreateSession(ctx, models.SessionState{
			SessionID: "s1", AgentID: "agent_a", StartedAt: time.Now(), Status: models.SessionRunning,
		}); err != nil {
			t.Fatal(err)
		}

		err := m.CreateSession(ctx, models.SessionState{
			SessionID: "s2", AgentID: "agent_a", StartedAt: time.Now(), Status: models.SessionRunning,
		})
		if err == nil {
			t.Fatal("expected error for second running session")
		}

		// Stopping the first frees the slot
		if err := m.UpdateSessionStatus(ctx, "s1", "agent_a", models.SessionStopped); err != nil {
			t.Fatal(err)
		}
		if err := m.CreateSession(ctx, models.SessionState{
			SessionID: "s2", AgentID: "agent_a", StartedAt: time.Now(), Status: models.SessionRunning,
		}); err != nil {
			t.Fatalf("create after stop failed: %v", err)
		}
	})

	t.Run("re-creating the same session resumes it", func(t *testing.T) {
		m := NewMemoryStore()
		state := models.SessionState{SessionID: "s1", AgentID: "agent_a", StartedAt: time.Now(), Status: models.SessionRunning}
		if err := m.CreateSession(ctx, state); err != nil {
			t.Fatal(err)
		}
		if err := m.UpdateSessionStatus(ctx, "s1", "agent_a", models.SessionStopped); err != nil {
			t.Fatal(err)
		}
		if err := m.CreateSession(ctx, state); err != nil {
			t.Fatalf("resume failed: %v", err)
		}
		got, err := m.GetSession(ctx, "s1", "agent_a")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.SessionRunning || got.EndedAt != nil {
			t.Errorf("resumed session = %+v", got)
		}
	})

	t.Run("cycle counter", func(t *testing.T) {
		m := NewMemoryStore()
		if err := m.CreateSession(ctx, models.SessionState{
			SessionID: "s1", AgentID: "agent_a", StartedAt: time.Now(), Status: models.SessionRunning,
		}); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			if err := m.IncrementCycleCount(ctx, "s1", "agent_a"); err != nil {
				t.Fatal(err)
			}
		}
		got, _ := m.GetSession(ctx, "s1", "agent_a")
		if got.CycleCount != 3 {
			t.Errorf("CycleCount = %d, want 3", got.CycleCount)
		}
	})
}

func TestMemoryStoreChatHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	h := models.NewChatHistory(
		models.Message{Role: models.RoleUser, Content: "prompt"},
		models.Message{Role: models.RoleAssistant, Content: "response"},
	)
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	if err := m.InsertChatHistory(ctx, "s1", h, &base); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertChatHistory(ctx, "s1", h, &base); err != nil {
		t.Fatal(err)
	}

	if got := m.ChatMessageCount("s1"); got != 4 {
		t.Errorf("ChatMessageCount = %d, want 4", got)
	}
}
