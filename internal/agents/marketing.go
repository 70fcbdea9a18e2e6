package agents

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/prompts"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// ragContext is what a semantic-index hit contributes to the research prompt
type ragContext struct {
	Summary     string
	BeforeState string
	AfterState  string
}

// noRAGContext is used when no similar past strategy exists yet
var noRAGContext = ragContext{
	Summary:     "no similar strategy yet",
	BeforeState: "unknown",
	AfterState:  "unknown",
}

// RunMarketingCycle executes one marketing cycle: research code, strategy,
// marketing code, then a double summarization of the state change and the
// code output before persisting.
func (o *Orchestrator) RunMarketingCycle(ctx context.Context, prior *models.StrategyData, notifStr string) (*models.StrategyData, error) {
	// A marketing cycle may run before any scraper has produced events
	if notifStr == "" {
		notifStr = "Fresh"
	}

	startMetricState := o.sensor.MetricState(ctx)
	apisStr := prompts.APIBlurbs(o.cfg.APIs)
	rc := o.lookupSimilar(ctx, notifStr)

	systemPrompt, err := o.registry.Render("system_prompt", map[string]string{
		"agent_id":     o.cfg.AgentID,
		"role":         o.cfg.Role,
		"time":         nowUTC(),
		"metric_name":  o.sensor.MetricName(),
		"metric_state": startMetricState,
	})
	if err != nil {
		return nil, err
	}
	chat := models.NewChatHistory(models.Message{Role: models.RoleSystem, Content: systemPrompt})

	logger.Info("🔄 Marketing cycle started",
		zap.String("agent_id", o.cfg.AgentID),
		zap.String("metric", o.sensor.MetricName()),
		zap.String("start_state", startMetricState),
		zap.Bool("first_cycle", prior == nil),
	)

	params := map[string]string{
		"apis":               apisStr,
		"start_metric_state": startMetricState,
	}
	if prior != nil {
		params["prev_strat"] = prior.SummarizedDesc
	}

	// Research stage
	var researchPrompt string
	if prior == nil {
		researchPrompt, err = o.registry.Render("research_code_prompt_first", map[string]string{
			"apis_str": apisStr,
		})
	} else {
		researchPrompt, err = o.registry.Render("research_code_prompt", map[string]string{
			"notifications_str":   notifStr,
			"prev_strategy":       prior.SummarizedDesc,
			"rag_summary":         rc.Summary,
			"before_metric_state": rc.BeforeState,
			"after_metric_state":  rc.AfterState,
		})
	}
	if err != nil {
		return nil, err
	}

	researchOutput, _, err := o.runCodeStage(ctx, "research", &chat, researchPrompt, o.cfg.Budgets.Research)
	if err != nil {
		return o.persistFailed(ctx, err, "", params)
	}

	// Strategy stage
	strategyPrompt, err := o.registry.Render("strategy_prompt", map[string]string{
		"notifications_str": notifStr,
		"research_output":   researchOutput,
		"metric_name":       o.sensor.MetricName(),
		"time":              nowUTC(),
	})
	if err != nil {
		return nil, err
	}

	strategyOutput, err := o.runChatStage(ctx, "strategy", &chat, strategyPrompt, o.cfg.Budgets.Strategy)
	if err != nil {
		return o.persistFailed(ctx, err, strategyOutput, params)
	}

	// Marketing code stage
	codePrompt, err := o.registry.Render("marketing_code_prompt", map[string]string{
		"strategy_output": strategyOutput,
		"apis_str":        apisStr,
	})
	if err != nil {
		return nil, err
	}

	codeOutput, _, err := o.runCodeStage(ctx, "marketing_code", &chat, codePrompt, o.cfg.Budgets.Code)
	if err != nil {
		return o.persistFailed(ctx, err, strategyOutput, params)
	}

	// Close out the cycle: read the metric again and summarize both the
	// state change and what the code did
	endMetricState := o.sensor.MetricState(ctx)

	summarizedChange := o.summarize(ctx,
		"metric "+o.sensor.MetricName()+" moved from "+startMetricState+" to "+endMetricState)
	summarizedCode := o.summarize(ctx, codeOutput)

	params["end_metric_state"] = endMetricState
	params["summarized_state_change"] = summarizedChange
	params["summarized_code"] = summarizedCode
	params["code_output"] = codeOutput

	summarized := o.summarize(ctx, strategyOutput)

	return o.persistOutcome(ctx, models.StrategyInsertData{
		SummarizedDesc: summarized,
		FullDesc:       strategyOutput,
		Parameters:     params,
		StrategyResult: models.ResultSuccess,
	})
}

// lookupSimilar queries the agent's shards for the closest past strategy.
// Results come back nearest first, so the head of a top-K query is the one
// that feeds the prompt. Any failure or empty result degrades to
// placeholders.
func (o *Orchestrator) lookupSimilar(ctx context.Context, text string) ragContext {
	topK := o.cfg.RAGTopK
	if topK < 1 {
		topK = 1
	}
	results, err := o.index.Query(ctx, text, o.cfg.AgentID, topK)
	if err != nil {
		logger.Warn("semantic lookup failed", zap.Error(err))
		return noRAGContext
	}
	if len(results) == 0 {
		return noRAGContext
	}

	var data models.StrategyData
	if err := json.Unmarshal([]byte(results[0].Payload), &data); err != nil {
		logger.Warn("failed to decode indexed strategy", zap.Error(err))
		return noRAGContext
	}

	rc := ragContext{
		Summary:     data.SummarizedDesc,
		BeforeState: data.Parameters["start_metric_state"],
		AfterState:  data.Parameters["end_metric_state"],
	}
	if rc.BeforeState == "" {
		rc.BeforeState = noRAGContext.BeforeState
	}
	if rc.AfterState == "" {
		rc.AfterState = noRAGContext.AfterState
	}

	logger.Debug("semantic lookup hit",
		zap.String("summary", rc.Summary),
		zap.Float64("distance", float64(results[0].Distance)),
	)

	return rc
}
