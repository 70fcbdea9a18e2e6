package agents

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/prompts"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// RunTradingCycle executes one trading cycle: strategy, optional address
// research, trading code, persist. Exhausted budgets still persist a failed
// outcome; only sandbox IO faults and store write failures abort.
func (o *Orchestrator) RunTradingCycle(ctx context.Context, prior *models.StrategyData, notifStr string) (*models.StrategyData, error) {
	metricState := o.sensor.MetricState(ctx)
	apisStr := prompts.APIBlurbs(o.cfg.APIs)

	systemPrompt, err := o.registry.Render("system_prompt", map[string]string{
		"agent_id":     o.cfg.AgentID,
		"time":         nowUTC(),
		"metric_name":  o.sensor.MetricName(),
		"metric_state": metricState,
	})
	if err != nil {
		return nil, err
	}
	chat := models.NewChatHistory(models.Message{Role: models.RoleSystem, Content: systemPrompt})

	logger.Info("🔄 Trading cycle started",
		zap.String("agent_id", o.cfg.AgentID),
		zap.Bool("assisted", o.cfg.Assisted),
		zap.Bool("first_cycle", prior == nil),
	)

	params := map[string]string{
		"apis":          apisStr,
		"metric_name":   o.sensor.MetricName(),
		"metric_state":  metricState,
		"notifications": notifStr,
	}
	if prior != nil {
		params["prev_strat"] = prior.SummarizedDesc
	}

	// Strategy stage
	var strategyPrompt string
	if prior == nil {
		strategyPrompt, err = o.registry.Render("strategy_prompt_first", map[string]string{
			"apis_str":    apisStr,
			"metric_name": o.sensor.MetricName(),
		})
	} else {
		strategyPrompt, err = o.registry.Render("strategy_prompt", map[string]string{
			"cur_environment":      notifStr,
			"prev_strategy":        prior.SummarizedDesc,
			"prev_strategy_result": string(prior.StrategyResult),
		})
	}
	if err != nil {
		return nil, err
	}

	strategyOutput, err := o.runChatStage(ctx, "strategy", &chat, strategyPrompt, o.cfg.Budgets.Strategy)
	if err != nil {
		return o.persistFailed(ctx, err, strategyOutput, params)
	}

	// Address research stage (assisted only)
	addressResearch := ""
	if o.cfg.Assisted {
		researchPrompt, rerr := o.registry.Render("address_research_code_prompt", nil)
		if rerr != nil {
			return nil, rerr
		}
		addressResearch, _, err = o.runCodeStage(ctx, "address_research", &chat, researchPrompt, o.cfg.Budgets.Research)
		if err != nil {
			return o.persistFailed(ctx, err, strategyOutput, params)
		}
		params["address_research"] = addressResearch
	}

	// Trading code stage
	instrumentsStr, err := prompts.InstrumentCalls(o.cfg.Instruments, o.cfg.AgentID, o.cfg.SignerURL)
	if err != nil {
		return nil, err
	}

	codeVars := map[string]string{
		"strategy_output":         strategyOutput,
		"apis_str":                apisStr,
		"trading_instruments_str": instrumentsStr,
		"agent_id":                o.cfg.AgentID,
		"txn_service_url":         o.cfg.SignerURL,
	}
	codeTemplate := "trading_code_non_address_prompt"
	if o.cfg.Assisted {
		codeTemplate = "trading_code_prompt"
		codeVars["address_research"] = addressResearch
	}
	codePrompt, err := o.registry.Render(codeTemplate, codeVars)
	if err != nil {
		return nil, err
	}

	output, _, err := o.runCodeStage(ctx, "trading_code", &chat, codePrompt, o.cfg.Budgets.Code)
	if err != nil {
		return o.persistFailed(ctx, err, strategyOutput, params)
	}
	params["code_output"] = output

	// Persist the successful outcome
	summarized := o.summarize(ctx, strategyOutput)

	return o.persistOutcome(ctx, models.StrategyInsertData{
		SummarizedDesc: summarized,
		FullDesc:       strategyOutput,
		Parameters:     params,
		StrategyResult: models.ResultSuccess,
	})
}

// persistFailed writes the failed outcome unless the stage error was fatal.
// full_desc carries the most recent strategy output so the next cycle still
// sees what was attempted.
func (o *Orchestrator) persistFailed(ctx context.Context, stageErr error, strategyOutput string, params map[string]string) (*models.StrategyData, error) {
	var exhausted *stageFailure
	if !errors.As(stageErr, &exhausted) {
		// Sandbox IO or other fatal fault: terminate the cycle without an
		// outcome row
		return nil, stageErr
	}

	logger.Warn("cycle failed, persisting failed outcome",
		zap.String("agent_id", o.cfg.AgentID),
		zap.String("stage", exhausted.Stage),
	)

	params["errors"] = exhausted.Errors

	summarized := ""
	if strategyOutput != "" {
		summarized = o.summarize(ctx, strategyOutput)
	}

	return o.persistOutcome(ctx, models.StrategyInsertData{
		SummarizedDesc: summarized,
		FullDesc:       strategyOutput,
		Parameters:     params,
		StrategyResult: models.ResultFailed,
	})
}

// summarize degrades to a truncation when the summarizer's own retry budget
// runs out; an imperfect index key beats losing the record
func (o *Orchestrator) summarize(ctx context.Context, text string) string {
	out, err := o.summarizer.Summarize(ctx, []string{text})
	if err != nil {
		logger.Warn("summarizer degraded to truncation", zap.Error(err))
		if len(text) > 200 {
			return text[:200]
		}
		return text
	}
	return out
}
