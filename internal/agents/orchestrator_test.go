package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/selivandex/superagent/internal/prompts"
	"github.com/selivandex/superagent/internal/rag"
	"github.com/selivandex/superagent/internal/sandbox"
	"github.com/selivandex/superagent/internal/sensor"
	"github.com/selivandex/superagent/internal/store"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

func setupTest(t *testing.T) {
	t.Helper()
	if err := logger.Init("error", ""); err != nil {
		t.Fatalf("logger init: %v", err)
	}
}

type scriptedReply struct {
	text string
	err  error
}

// scriptedGenerator pops replies off per-method queues and records every
// history it was called with
type scriptedGenerator struct {
	chatQueue []scriptedReply
	codeQueue []scriptedReply
	chatCalls []models.ChatHistory
	codeCalls []models.ChatHistory
}

func (g *scriptedGenerator) ChatCompletion(_ context.Context, history models.ChatHistory) (string, error) {
	g.chatCalls = append(g.chatCalls, history)
	if len(g.chatQueue) == 0 {
		return "", fmt.Errorf("chat script exhausted")
	}
	reply := g.chatQueue[0]
	g.chatQueue = g.chatQueue[1:]
	return reply.text, reply.err
}

func (g *scriptedGenerator) GenerateCode(_ context.Context, history models.ChatHistory, _ ...string) ([]string, string, error) {
	g.codeCalls = append(g.codeCalls, history)
	if len(g.codeQueue) == 0 {
		return nil, "", fmt.Errorf("code script exhausted")
	}
	reply := g.codeQueue[0]
	g.codeQueue = g.codeQueue[1:]
	if reply.err != nil {
		return nil, "", reply.err
	}
	raw := "```python\n" + reply.text + "```"
	return []string{reply.text}, raw, nil
}

func (g *scriptedGenerator) GenerateList(context.Context, models.ChatHistory, ...string) ([][]string, string, error) {
	return nil, "", fmt.Errorf("not scripted")
}

type sandboxRun struct {
	output string
	err    error
}

// scriptedSandbox pops one result per RunCode call and records the scripts
type scriptedSandbox struct {
	results []sandboxRun
	scripts []string
}

func (s *scriptedSandbox) RunCode(_ context.Context, script, _ string) (string, string, error) {
	s.scripts = append(s.scripts, script)
	if len(s.results) == 0 {
		return "", "", fmt.Errorf("sandbox script exhausted")
	}
	run := s.results[0]
	s.results = s.results[1:]
	return run.output, "", run.err
}

// fakeIndex records upserts and serves canned query results
type fakeIndex struct {
	upserts      []rag.Record
	queryResults []rag.QueryResult
	queries      []string
	queryKs      []int
}

func (f *fakeIndex) Upsert(_ context.Context, records []rag.Record) error {
	f.upserts = append(f.upserts, records...)
	return nil
}

func (f *fakeIndex) Query(_ context.Context, text, _ string, topK int) ([]rag.QueryResult, error) {
	f.queries = append(f.queries, text)
	f.queryKs = append(f.queryKs, topK)
	return f.queryResults, nil
}

func (f *fakeIndex) Contains(_ context.Context, _, referenceID string) bool {
	for _, rec := range f.upserts {
		if rec.ReferenceID == referenceID {
			return true
		}
	}
	return false
}

type testRig struct {
	orch    *Orchestrator
	gen     *scriptedGenerator
	sb      *scriptedSandbox
	store   *store.MemoryStore
	index   *fakeIndex
}

func newTradingRig(t *testing.T, gen *scriptedGenerator, sb *scriptedSandbox) *testRig {
	t.Helper()
	registry, err := prompts.NewRegistry(prompts.KindTrading, nil)
	if err != nil {
		t.Fatal(err)
	}

	st := store.NewMemoryStore()
	ix := &fakeIndex{}
	orch := New(
		Config{
			AgentID:     "agent_test",
			SessionID:   "session_test",
			APIs:        []string{"coingecko", "etherscan"},
			Instruments: []string{"spot"},
			SignerURL:   "http://signer:9000",
			Assisted:    false,
			Budgets:     Budgets{Research: 2, Strategy: 2, Code: 2},
		},
		registry, gen, sb, st, ix, &sensor.MockSensor{Name: "wallet", State: "0.5 ETH"}, nil,
	)
	return &testRig{orch: orch, gen: gen, sb: sb, store: st, index: ix}
}

func newMarketingRig(t *testing.T, gen *scriptedGenerator, sb *scriptedSandbox, ix *fakeIndex) *testRig {
	t.Helper()
	registry, err := prompts.NewRegistry(prompts.KindMarketing, nil)
	if err != nil {
		t.Fatal(err)
	}

	st := store.NewMemoryStore()
	orch := New(
		Config{
			AgentID:   "agent_test",
			SessionID: "session_test",
			Role:      "a witty crypto educator",
			APIs:      []string{"twitter", "reddit"},
			Budgets:   Budgets{Research: 2, Strategy: 2, Code: 2},
			RAGTopK:   3,
		},
		registry, gen, sb, st, ix, &sensor.MockSensor{Name: "followers", State: "27"}, nil,
	)
	return &testRig{orch: orch, gen: gen, sb: sb, store: st, index: ix}
}

func TestTradingCycleHappyPath(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Buy WETH on dips and sell into strength."},
			{text: "buy weth dips, sell strength"},
		},
		codeQueue: []scriptedReply{
			{text: "print('buying weth')\n"},
		},
	}
	sb := &scriptedSandbox{results: []sandboxRun{{output: "bought 1 WETH"}}}
	rig := newTradingRig(t, gen, sb)

	outcome, err := rig.orch.RunCycle(ctx, nil, "")
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if outcome.StrategyResult != models.ResultSuccess {
		t.Errorf("result = %q, want success", outcome.StrategyResult)
	}
	if outcome.FullDesc != "Buy WETH on dips and sell into strength." {
		t.Errorf("full_desc = %q", outcome.FullDesc)
	}
	if outcome.SummarizedDesc != "buy weth dips, sell strength" {
		t.Errorf("summarized_desc = %q", outcome.SummarizedDesc)
	}
	if outcome.Parameters["code_output"] != "bought 1 WETH" {
		t.Errorf("code_output = %q", outcome.Parameters["code_output"])
	}

	// First cycle renders the first-form strategy prompt
	if len(gen.chatCalls) == 0 {
		t.Fatal("no chat calls recorded")
	}
	strategyPrompt := gen.chatCalls[0].LatestInstruction()
	if !strings.Contains(strategyPrompt, "never traded before") {
		t.Errorf("first cycle did not use the first-form prompt: %q", strategyPrompt)
	}

	// Code prompt carries strategy, APIs and the signer stubs
	codePrompt := gen.codeCalls[0].LatestInstruction()
	for _, want := range []string{"Buy WETH on dips", "CoinGecko", "x-superior-agent-id: agent_test", "http://signer:9000"} {
		if !strings.Contains(codePrompt, want) {
			t.Errorf("code prompt missing %q", want)
		}
	}

	// Outcome landed in the store and the index
	latest, _ := rig.store.FetchLatestStrategy(ctx, "agent_test")
	if latest == nil || latest.StrategyID != outcome.StrategyID {
		t.Errorf("store latest = %+v", latest)
	}
	if len(rig.index.upserts) != 1 || rig.index.upserts[0].TextKey != outcome.SummarizedDesc {
		t.Errorf("index upserts = %+v", rig.index.upserts)
	}

	// One 2-message delta per successful generation: strategy + code
	if got := rig.store.ChatMessageCount("session_test"); got != 4 {
		t.Errorf("chat messages = %d, want 4", got)
	}
}

func TestTradingCycleRegeneratesOnExecFailure(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Accumulate USDC."},
			{text: "accumulate usdc"},
		},
		codeQueue: []scriptedReply{
			{text: "print(undefined_name)\n"},
			{text: "print('fixed')\n"},
		},
	}
	sb := &scriptedSandbox{results: []sandboxRun{
		{err: &sandbox.ExecError{ExitCode: 1, Output: "NameError: undefined_name"}},
		{output: "all good"},
	}}
	rig := newTradingRig(t, gen, sb)

	outcome, err := rig.orch.RunCycle(ctx, nil, "")
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if outcome.StrategyResult != models.ResultSuccess {
		t.Errorf("result = %q, want success after regen", outcome.StrategyResult)
	}

	if len(gen.codeCalls) != 2 {
		t.Fatalf("code generations = %d, want 2", len(gen.codeCalls))
	}

	// The second attempt uses the regen form carrying the accumulated error
	// and the broken code
	regenPrompt := gen.codeCalls[1].LatestInstruction()
	if !strings.Contains(regenPrompt, "NameError: undefined_name") {
		t.Errorf("regen prompt missing accumulated error: %q", regenPrompt)
	}
	if !strings.Contains(regenPrompt, "print(undefined_name)") {
		t.Errorf("regen prompt missing previous code: %q", regenPrompt)
	}

	// Both generations persisted their deltas: strategy (2) + code (4)
	if got := rig.store.ChatMessageCount("session_test"); got != 6 {
		t.Errorf("chat messages = %d, want 6", got)
	}
}

func TestTradingCycleBudgetExhaustion(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Chase the top gainer."},
			{text: "chase top gainer"},
		},
		codeQueue: []scriptedReply{
			{text: "broken_one()\n"},
			{text: "broken_two()\n"},
		},
	}
	sb := &scriptedSandbox{results: []sandboxRun{
		{err: &sandbox.ExecError{ExitCode: 1, Output: "error one"}},
		{err: &sandbox.ExecError{ExitCode: 1, Output: "error two"}},
	}}
	rig := newTradingRig(t, gen, sb)

	outcome, err := rig.orch.RunCycle(ctx, nil, "")
	if err != nil {
		t.Fatalf("budget exhaustion must persist, not fail: %v", err)
	}

	if outcome.StrategyResult != models.ResultFailed {
		t.Errorf("result = %q, want failed", outcome.StrategyResult)
	}
	// The failed record still carries the strategy so the next cycle sees it
	if outcome.FullDesc != "Chase the top gainer." {
		t.Errorf("full_desc = %q", outcome.FullDesc)
	}
	for _, want := range []string{"error one", "error two"} {
		if !strings.Contains(outcome.Parameters["errors"], want) {
			t.Errorf("errors param missing %q: %q", want, outcome.Parameters["errors"])
		}
	}

	latest, _ := rig.store.FetchLatestStrategy(ctx, "agent_test")
	if latest == nil || latest.StrategyResult != models.ResultFailed {
		t.Errorf("store latest = %+v", latest)
	}
}

func TestTradingCycleSandboxTimeout(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Scalp in a tight loop."},
			{text: "scalp loop"},
		},
		codeQueue: []scriptedReply{
			{text: "while True: pass\n"},
			{text: "while True: pass  # again\n"},
		},
	}
	sb := &scriptedSandbox{results: []sandboxRun{
		{err: sandbox.ErrTimeout},
		{err: sandbox.ErrTimeout},
	}}
	rig := newTradingRig(t, gen, sb)

	outcome, err := rig.orch.RunCycle(ctx, nil, "")
	if err != nil {
		t.Fatalf("timeout must be recoverable: %v", err)
	}
	if outcome.StrategyResult != models.ResultFailed {
		t.Errorf("result = %q, want failed", outcome.StrategyResult)
	}
	if !strings.Contains(outcome.Parameters["errors"], "execution timed out") {
		t.Errorf("errors param = %q", outcome.Parameters["errors"])
	}

	// The regen prompt told the model about the timeout
	regenPrompt := gen.codeCalls[1].LatestInstruction()
	if !strings.Contains(regenPrompt, "execution timed out") {
		t.Errorf("regen prompt = %q", regenPrompt)
	}
}

func TestTradingCycleSandboxIOFault(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{{text: "Any strategy."}},
		codeQueue: []scriptedReply{{text: "print('hi')\n"}},
	}
	sb := &scriptedSandbox{results: []sandboxRun{
		{err: &sandbox.IOError{Op: "copy", Err: fmt.Errorf("container gone")}},
	}}
	rig := newTradingRig(t, gen, sb)

	outcome, err := rig.orch.RunCycle(ctx, nil, "")
	if err == nil {
		t.Fatal("IO fault must abort the cycle")
	}
	if outcome != nil {
		t.Errorf("outcome = %+v, want nil", outcome)
	}

	// No outcome row was written
	latest, _ := rig.store.FetchLatestStrategy(ctx, "agent_test")
	if latest != nil {
		t.Errorf("store latest = %+v, want nil", latest)
	}
}

func TestTradingCycleUsesPriorStrategy(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Double down on WETH."},
			{text: "double down weth"},
		},
		codeQueue: []scriptedReply{{text: "print('ok')\n"}},
	}
	sb := &scriptedSandbox{results: []sandboxRun{{output: "done"}}}
	rig := newTradingRig(t, gen, sb)

	prior := &models.StrategyData{
		StrategyID:     7,
		AgentID:        "agent_test",
		SummarizedDesc: "bought weth last cycle",
		StrategyResult: models.ResultSuccess,
	}

	if _, err := rig.orch.RunCycle(ctx, prior, "weth is pumping"); err != nil {
		t.Fatal(err)
	}

	strategyPrompt := gen.chatCalls[0].LatestInstruction()
	for _, want := range []string{"bought weth last cycle", "weth is pumping", "success"} {
		if !strings.Contains(strategyPrompt, want) {
			t.Errorf("strategy prompt missing %q: %q", want, strategyPrompt)
		}
	}
}

func TestMarketingCycleRAGHit(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	indexed := models.StrategyData{
		StrategyID:     3,
		AgentID:        "agent_test",
		SummarizedDesc: "previous meme push",
		Parameters: map[string]string{
			"start_metric_state": "27",
			"end_metric_state":   "34",
		},
	}
	payload, _ := json.Marshal(&indexed)

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Run another meme push with a poll."},
			{text: "followers 27 to 27"},
			{text: "posted a poll"},
			{text: "meme push with poll"},
		},
		codeQueue: []scriptedReply{
			{text: "print('research digest')\n"},
			{text: "print('posting')\n"},
		},
	}
	sb := &scriptedSandbox{results: []sandboxRun{
		{output: "digest: audience likes polls"},
		{output: "posted 1 poll"},
	}}
	ix := &fakeIndex{queryResults: []rag.QueryResult{{Payload: string(payload), Distance: 0.1}}}
	rig := newMarketingRig(t, gen, sb, ix)

	prior := &models.StrategyData{
		StrategyID:     2,
		AgentID:        "agent_test",
		SummarizedDesc: "last cycle: replied to threads",
		StrategyResult: models.ResultSuccess,
	}

	outcome, err := rig.orch.RunCycle(ctx, prior, "someone mentioned us")
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if outcome.StrategyResult != models.ResultSuccess {
		t.Errorf("result = %q", outcome.StrategyResult)
	}

	// The lookup runs at the configured breadth and the research prompt
	// carries the semantic hit and its metric movement
	if len(ix.queryKs) != 1 || ix.queryKs[0] != 3 {
		t.Errorf("query topK calls = %v, want one call at 3", ix.queryKs)
	}
	researchPrompt := gen.codeCalls[0].LatestInstruction()
	for _, want := range []string{"previous meme push", "from 27 to 34", "last cycle: replied to threads", "someone mentioned us"} {
		if !strings.Contains(researchPrompt, want) {
			t.Errorf("research prompt missing %q", want)
		}
	}

	if outcome.Parameters["start_metric_state"] != "27" || outcome.Parameters["end_metric_state"] != "27" {
		t.Errorf("metric states = %q -> %q", outcome.Parameters["start_metric_state"], outcome.Parameters["end_metric_state"])
	}
	if outcome.Parameters["code_output"] != "posted 1 poll" {
		t.Errorf("code_output = %q", outcome.Parameters["code_output"])
	}
}

func TestMarketingCycleFirstCycleDefaults(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	gen := &scriptedGenerator{
		chatQueue: []scriptedReply{
			{text: "Introduce ourselves with a launch thread."},
			{text: "followers unchanged"},
			{text: "posted launch thread"},
			{text: "launch thread strategy"},
		},
		codeQueue: []scriptedReply{
			{text: "print('researching audience')\n"},
			{text: "print('posting thread')\n"},
		},
	}
	sb := &scriptedSandbox{results: []sandboxRun{
		{output: "audience digest"},
		{output: "thread posted"},
	}}
	ix := &fakeIndex{}
	rig := newMarketingRig(t, gen, sb, ix)

	// No prior strategy and no notifications at all
	outcome, err := rig.orch.RunCycle(ctx, nil, "")
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if outcome.StrategyResult != models.ResultSuccess {
		t.Errorf("result = %q", outcome.StrategyResult)
	}

	researchPrompt := gen.codeCalls[0].LatestInstruction()
	if !strings.Contains(researchPrompt, "first cycle") {
		t.Errorf("first cycle did not use the first-form research prompt: %q", researchPrompt)
	}

	// Empty notifications render as the Fresh placeholder in the strategy
	// prompt
	strategyPrompt := gen.chatCalls[0].LatestInstruction()
	if !strings.Contains(strategyPrompt, "Fresh") {
		t.Errorf("strategy prompt missing Fresh placeholder: %q", strategyPrompt)
	}
}

func TestSummarizerRetriesThenDegrades(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	t.Run("succeeds on a later attempt", func(t *testing.T) {
		gen := &scriptedGenerator{chatQueue: []scriptedReply{
			{err: fmt.Errorf("rate limited")},
			{text: "  a short summary  "},
		}}
		s := NewSummarizer(gen)
		out, err := s.Summarize(ctx, []string{"item one", "item two"})
		if err != nil {
			t.Fatal(err)
		}
		if out != "a short summary" {
			t.Errorf("summary = %q", out)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		gen := &scriptedGenerator{}
		s := NewSummarizer(gen)
		if _, err := s.Summarize(ctx, []string{"item"}); err == nil {
			t.Fatal("expected error after exhausted attempts")
		}
	})
}
