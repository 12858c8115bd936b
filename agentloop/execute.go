package agentloop

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Execute runs the named command and returns its result. Recoverable
// failures come back as *ActionErrorResult; the only error returned is the
// termination signal, in which case no observer runs.
func (a *Agent) Execute(ctx context.Context, name string, args CommandArgs, userInput string) (ActionResult, error) {
	var result ActionResult

	if name == HumanFeedbackCommand {
		result = &ActionInterruptedByHuman{Feedback: userInput}
		a.logCycle(ctx, CycleUserInput, userInput)
		a.emitter.Emit(EventHumanFeedback, a.cycleCount, map[string]any{"feedback": userInput})
	} else {
		var err error
		result, err = a.runCommand(ctx, name, args)
		if err != nil {
			return nil, err
		}
		result = a.limitResultSize(name, result)
	}

	for _, c := range a.pipeline {
		o, ok := c.(ExecutionObserver)
		if !ok || !a.enabled(c, "after_execution") {
			continue
		}
		if err := o.AfterExecution(ctx, result); err != nil {
			a.traceHook(c, "after_execution", err)
			if IsTerminated(err) {
				return nil, err
			}
			a.logger.Warn("after_execution hook failed",
				zap.String("component", ComponentName(c)),
				zap.Error(err))
			continue
		}
		a.traceHook(c, "after_execution", nil)
	}
	a.logger.Debug("cycle trace", zap.Strings("trace", a.trace))
	return result, nil
}

func (a *Agent) runCommand(ctx context.Context, name string, args CommandArgs) (ActionResult, error) {
	a.emitter.Emit(EventCommandStart, a.cycleCount, map[string]any{"command": name})

	out, err := a.commands.Execute(ctx, name, args)
	if err == nil {
		a.emitter.Emit(EventCommandEnd, a.cycleCount, map[string]any{"command": name})
		return &ActionSuccessResult{Outputs: out}, nil
	}
	if IsTerminated(err) {
		a.logger.Info("agent terminated", zap.String("command", name), zap.Error(err))
		a.emitter.Emit(EventAgentTerminated, a.cycleCount, map[string]any{"command": name, "reason": err.Error()})
		return nil, err
	}

	ae, ok := AsAgentError(err)
	if !ok {
		ae = CommandExecutionError(err)
	}
	a.logger.Warn("command raised an error",
		zap.String("command", name),
		zap.Any("args", map[string]any(args)),
		zap.String("kind", string(ae.Kind)),
		zap.Error(ae))
	a.emitter.Emit(EventCommandError, a.cycleCount, map[string]any{
		"command": name,
		"kind":    string(ae.Kind),
		"error":   ae.Error(),
	})
	return ErrorResultFrom(ae), nil
}

// limitResultSize replaces a result longer than a third of the prompt budget
// with an error telling the model not to repeat the call.
func (a *Agent) limitResultSize(name string, result ActionResult) ActionResult {
	limit := a.settings.SendTokenLimit / 3
	tokens := a.transport.CountTokens(result.String())
	if tokens <= limit {
		return result
	}
	a.logger.Warn("command output too large",
		zap.String("command", name),
		zap.Int("tokens", tokens),
		zap.Int("limit", limit))
	a.emitter.Emit(EventResultReplaced, a.cycleCount, map[string]any{"command": name, "tokens": tokens})
	return &ActionErrorResult{
		Reason: fmt.Sprintf("Command %s returned too much output. "+
			"Do not execute this command again with the same arguments.", name),
		Kind: KindGeneric,
	}
}
