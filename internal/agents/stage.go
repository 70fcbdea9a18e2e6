package agents

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/sandbox"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// Every stage runs under the same retry envelope: the first attempt uses the
// stage's first-time prompt, later attempts use the regen form carrying the
// previous broken artifact and the accumulated error string. A successful
// generation appends its user+assistant delta to the cycle chat and persists
// it; execution failures feed the accumulator like generation failures do.

// stageFailure marks a stage that exhausted its attempt budget. The cycle
// still persists a failed StrategyData.
type stageFailure struct {
	Stage  string
	Errors string
}

func (e *stageFailure) Error() string {
	return "stage " + e.Stage + " exhausted its attempt budget"
}

// errorAccumulator concatenates attempt failures for the regen prompt
type errorAccumulator struct {
	parts []string
}

func (a *errorAccumulator) add(msg string) {
	if msg == "" {
		return
	}
	a.parts = append(a.parts, msg)
}

func (a *errorAccumulator) String() string {
	return strings.Join(a.parts, "\n")
}

// runChatStage runs a generation-only stage (no sandbox). Retries re-issue
// the same prompt: there is no regen template for prose stages, the model
// simply gets another shot.
func (o *Orchestrator) runChatStage(ctx context.Context, stage string, chat *models.ChatHistory, prompt string, maxAttempts int) (string, error) {
	accum := &errorAccumulator{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		started := time.Now()
		candidate := chat.Append(models.Message{Role: models.RoleUser, Content: prompt})

		response, err := o.generator.ChatCompletion(ctx, candidate)
		if err != nil {
			o.recordStageAttempt(stage, attempt, false, started)
			accum.add(err.Error())
			logger.Warn("stage attempt failed",
				zap.String("stage", stage),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		delta := models.NewChatHistory(
			models.Message{Role: models.RoleUser, Content: prompt},
			models.Message{Role: models.RoleAssistant, Content: response},
		)
		*chat = candidate.Append(models.Message{Role: models.RoleAssistant, Content: response})
		o.persistChatDelta(ctx, delta)

		o.recordStageAttempt(stage, attempt, true, started)
		return response, nil
	}

	return "", &stageFailure{Stage: stage, Errors: accum.String()}
}

// runCodeStage runs a generate-then-execute stage. Returns the captured
// sandbox output and the final code. Sandbox IO faults abort immediately;
// everything else regenerates until the budget runs out.
func (o *Orchestrator) runCodeStage(ctx context.Context, stage string, chat *models.ChatHistory, firstPrompt string, maxAttempts int) (string, string, error) {
	accum := &errorAccumulator{}
	lastCode := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		started := time.Now()

		prompt := firstPrompt
		if attempt > 1 {
			regen, err := o.registry.Render("regen_code_prompt", map[string]string{
				"errors":        accum.String(),
				"previous_code": lastCode,
			})
			if err != nil {
				return "", lastCode, err
			}
			prompt = regen
		}

		candidate := chat.Append(models.Message{Role: models.RoleUser, Content: prompt})

		snippets, raw, err := o.generator.GenerateCode(ctx, candidate)
		if err != nil {
			o.recordStageAttempt(stage, attempt, false, started)
			accum.add(err.Error())
			logger.Warn("code generation failed",
				zap.String("stage", stage),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		code := snippets[0]
		lastCode = code

		delta := models.NewChatHistory(
			models.Message{Role: models.RoleUser, Content: prompt},
			models.Message{Role: models.RoleAssistant, Content: raw},
		)
		*chat = candidate.Append(models.Message{Role: models.RoleAssistant, Content: raw})
		o.persistChatDelta(ctx, delta)

		runStarted := time.Now()
		output, _, runErr := o.sandbox.RunCode(ctx, code, o.cfg.SessionID)
		if runErr != nil {
			var execErr *sandbox.ExecError
			var ioErr *sandbox.IOError
			switch {
			case errors.Is(runErr, sandbox.ErrTimeout):
				o.recordSandboxRun(o.cfg.SessionID, false, true, 0, runStarted)
				accum.add("execution timed out")
			case errors.As(runErr, &execErr):
				o.recordSandboxRun(o.cfg.SessionID, false, false, len(execErr.Output), runStarted)
				accum.add(execErr.Output)
			case errors.As(runErr, &ioErr):
				// Injection or container fault, fatal to the cycle
				o.recordSandboxRun(o.cfg.SessionID, false, false, 0, runStarted)
				o.recordStageAttempt(stage, attempt, false, started)
				return "", lastCode, runErr
			default:
				accum.add(runErr.Error())
			}

			o.recordStageAttempt(stage, attempt, false, started)
			logger.Warn("code execution failed",
				zap.String("stage", stage),
				zap.Int("attempt", attempt),
				zap.Error(runErr),
			)
			continue
		}

		o.recordSandboxRun(o.cfg.SessionID, true, false, len(output), runStarted)
		o.recordStageAttempt(stage, attempt, true, started)

		logger.Info("✅ Stage completed",
			zap.String("stage", stage),
			zap.Int("attempt", attempt),
			zap.Int("output_len", len(output)),
		)

		return output, code, nil
	}

	return "", lastCode, &stageFailure{Stage: stage, Errors: accum.String()}
}
