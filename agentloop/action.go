package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionStatus tags an ActionResult variant.
type ActionStatus string

const (
	StatusSuccess            ActionStatus = "success"
	StatusError              ActionStatus = "error"
	StatusInterruptedByHuman ActionStatus = "interrupted_by_human"
)

// ActionResult is the outcome of one Execute call. The concrete types are
// *ActionSuccessResult, *ActionErrorResult and *ActionInterruptedByHuman.
type ActionResult interface {
	Status() ActionStatus
	String() string
	isActionResult()
}

// ActionSuccessResult carries a command's return value.
type ActionSuccessResult struct {
	Outputs any
}

func (*ActionSuccessResult) Status() ActionStatus { return StatusSuccess }
func (*ActionSuccessResult) isActionResult()      {}

func (r *ActionSuccessResult) String() string {
	out := formatOutputs(r.Outputs)
	if strings.Contains(out, "\n") {
		return "```\n" + strings.ReplaceAll(out, "```", "\\```") + "\n```"
	}
	return out
}

func formatOutputs(v any) string {
	switch o := v.(type) {
	case nil:
		return ""
	case string:
		return o
	case []byte:
		return string(o)
	case fmt.Stringer:
		return o.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// ActionErrorResult carries the reason a command failed.
type ActionErrorResult struct {
	Reason string
	Kind   ErrorKind
}

func (*ActionErrorResult) Status() ActionStatus { return StatusError }
func (*ActionErrorResult) isActionResult()      {}

func (r *ActionErrorResult) String() string {
	return fmt.Sprintf("Action failed: '%s'", r.Reason)
}

// ErrorResultFrom converts an agent error into a result.
func ErrorResultFrom(err *AgentError) *ActionErrorResult {
	return &ActionErrorResult{Reason: err.Error(), Kind: err.Kind}
}

// ActionInterruptedByHuman carries the user's feedback in place of a command.
type ActionInterruptedByHuman struct {
	Feedback string
}

func (*ActionInterruptedByHuman) Status() ActionStatus { return StatusInterruptedByHuman }
func (*ActionInterruptedByHuman) isActionResult()      {}

func (r *ActionInterruptedByHuman) String() string {
	return fmt.Sprintf("The user interrupted the action with the following feedback: \"%s\"", r.Feedback)
}
