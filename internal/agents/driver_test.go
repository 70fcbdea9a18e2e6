package agents

import (
	"context"
	"testing"
	"time"

	"github.com/selivandex/superagent/pkg/models"
)

// fakeGuard scripts the session slot acquisition
type fakeGuard struct {
	held     bool
	acquired bool
	released bool
}

func (g *fakeGuard) TryAcquire(context.Context) (bool, error) {
	if g.held {
		return false, nil
	}
	g.acquired = true
	return true, nil
}

func (g *fakeGuard) Release(context.Context) error {
	g.released = true
	return nil
}

func TestDriverBootstrap(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	t.Run("creates the session and claims the slot", func(t *testing.T) {
		rig := newTradingRig(t, &scriptedGenerator{}, &scriptedSandbox{})
		guard := &fakeGuard{}
		d := NewDriver(rig.orch, rig.store, rig.index, guard, nil, nil)

		if err := d.Bootstrap(ctx); err != nil {
			t.Fatal(err)
		}
		if !guard.acquired {
			t.Error("slot not acquired")
		}

		session, err := rig.store.GetSession(ctx, "session_test", "agent_test")
		if err != nil {
			t.Fatal(err)
		}
		if session == nil || session.Status != models.SessionRunning {
			t.Errorf("session = %+v", session)
		}
	})

	t.Run("held slot refuses bootstrap", func(t *testing.T) {
		rig := newTradingRig(t, &scriptedGenerator{}, &scriptedSandbox{})
		d := NewDriver(rig.orch, rig.store, rig.index, &fakeGuard{held: true}, nil, nil)

		if err := d.Bootstrap(ctx); err == nil {
			t.Fatal("expected error when the slot is held")
		}
	})

	t.Run("resumes an existing session", func(t *testing.T) {
		rig := newTradingRig(t, &scriptedGenerator{}, &scriptedSandbox{})
		if err := rig.store.CreateSession(ctx, models.SessionState{
			SessionID: "session_test",
			AgentID:   "agent_test",
			StartedAt: time.Now(),
			Status:    models.SessionStopped,
		}); err != nil {
			t.Fatal(err)
		}

		d := NewDriver(rig.orch, rig.store, rig.index, &fakeGuard{}, nil, nil)
		if err := d.Bootstrap(ctx); err != nil {
			t.Fatal(err)
		}

		session, _ := rig.store.GetSession(ctx, "session_test", "agent_test")
		if session.Status != models.SessionRunning {
			t.Errorf("status = %q", session.Status)
		}
	})

	t.Run("backfills prior strategies for trading agents", func(t *testing.T) {
		rig := newTradingRig(t, &scriptedGenerator{}, &scriptedSandbox{})
		for _, desc := range []string{"strategy one", "strategy two"} {
			if _, err := rig.store.InsertStrategy(ctx, "agent_test", models.StrategyInsertData{
				SummarizedDesc: desc,
				FullDesc:       desc + " full",
				StrategyResult: models.ResultSuccess,
			}); err != nil {
				t.Fatal(err)
			}
		}
		// A strategy without a summary is not indexable
		if _, err := rig.store.InsertStrategy(ctx, "agent_test", models.StrategyInsertData{
			FullDesc:       "unsummarized",
			StrategyResult: models.ResultFailed,
		}); err != nil {
			t.Fatal(err)
		}

		d := NewDriver(rig.orch, rig.store, rig.index, &fakeGuard{}, nil, nil)
		if err := d.Bootstrap(ctx); err != nil {
			t.Fatal(err)
		}

		if len(rig.index.upserts) != 2 {
			t.Errorf("backfilled %d records, want 2", len(rig.index.upserts))
		}
	})
}

func TestDriverRunAndClose(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Hold and observe."},
			{text: "hold and observe"},
		},
		codeQueue: []scriptedReply{{text: "print('observing')\n"}},
	}
	sb := &scriptedSandbox{results: []sandboxRun{{output: "observed"}}}
	rig := newTradingRig(t, gen, sb)
	guard := &fakeGuard{}
	d := NewDriver(rig.orch, rig.store, rig.index, guard, nil, nil)

	if err := d.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	session, _ := rig.store.GetSession(ctx, "session_test", "agent_test")
	if session.CycleCount != 1 {
		t.Errorf("CycleCount = %d, want 1", session.CycleCount)
	}

	latest, _ := rig.store.FetchLatestStrategy(ctx, "agent_test")
	if latest == nil || latest.StrategyResult != models.ResultSuccess {
		t.Errorf("latest = %+v", latest)
	}

	if err := d.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if !guard.released {
		t.Error("slot not released on close")
	}
	session, _ = rig.store.GetSession(ctx, "session_test", "agent_test")
	if session.Status != models.SessionStopped {
		t.Errorf("status after close = %q", session.Status)
	}
}

func TestDriverName(t *testing.T) {
	setupTest(t)
	rig := newTradingRig(t, &scriptedGenerator{}, &scriptedSandbox{})
	d := NewDriver(rig.orch, rig.store, rig.index, &fakeGuard{}, nil, nil)
	if d.Name() != "agent-trading-agent_test" {
		t.Errorf("Name = %q", d.Name())
	}
}
