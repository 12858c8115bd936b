package agentloop

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/martinemde/autocycle/unifiedllm"
)

// transportError marks a failure of the model call itself. It ends the
// proposal without spending the reparse budget.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "model call failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// completeAndParse calls the model and parses its answer, up to
// MaxParseRetries times. Each failed attempt leaves a system message with
// its error in the prompt, so later attempts see every earlier error.
func (a *Agent) completeAndParse(ctx context.Context, messages []unifiedllm.Message) (*ThoughtProcessOutput, error) {
	budget := a.settings.MaxParseRetries
	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		if lastErr != nil {
			messages = append(messages, unifiedllm.SystemMessage("Error: "+lastErr.Error()))
		}

		out, err := a.completeOnce(ctx, messages)
		if err == nil {
			return out, nil
		}
		var te *transportError
		if errors.As(err, &te) || IsTerminated(err) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		a.logger.Warn("unusable model response",
			zap.Int("attempt", attempt),
			zap.Int("budget", budget),
			zap.Error(err))
		a.emitter.Emit(EventParseError, a.cycleCount, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
	return nil, &ReparseExhaustedError{Attempts: budget, Err: lastErr}
}

func (a *Agent) completeOnce(ctx context.Context, messages []unifiedllm.Message) (*ThoughtProcessOutput, error) {
	var functions []unifiedllm.ToolDefinition
	if a.settings.UseFunctionsAPI {
		functions = a.commands.Specs()
	}
	resp, err := a.transport.CreateChatCompletion(ctx, messages, functions)
	if err != nil {
		return nil, &transportError{err: err}
	}

	out := NewThoughtProcessOutput()
	for _, c := range a.pipeline {
		p, ok := c.(ResponseParser)
		if !ok || !a.enabled(c, "parse_response") {
			continue
		}
		if err := p.ParseResponse(ctx, out, resp); err != nil {
			a.traceHook(c, "parse_response", err)
			return nil, err
		}
		a.traceHook(c, "parse_response", nil)
	}

	if cmd := a.commands.Resolve(out.CommandName); cmd != nil {
		if ok, reason := cmd.IsValid(out.CommandArgs); !ok {
			return nil, InvalidOperationError(reason)
		}
	}

	a.logCycle(ctx, CycleNextAction, map[string]any{
		"thoughts": out.Thoughts,
		"command": map[string]any{
			"name": out.CommandName,
			"args": map[string]any(out.CommandArgs),
		},
	})

	for _, c := range a.pipeline {
		o, ok := c.(AfterParsingObserver)
		if !ok || !a.enabled(c, "after_parsing") {
			continue
		}
		if err := o.AfterParsing(ctx, out); err != nil {
			a.traceHook(c, "after_parsing", err)
			a.logger.Warn("after_parsing hook failed",
				zap.String("component", ComponentName(c)),
				zap.Error(err))
			a.emitter.Emit(EventComponentError, a.cycleCount, map[string]any{
				"component": ComponentName(c),
				"hook":      "after_parsing",
				"error":     err.Error(),
			})
			continue
		}
		a.traceHook(c, "after_parsing", nil)
	}
	return out, nil
}
