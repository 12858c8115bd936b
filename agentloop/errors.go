package agentloop

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a recoverable agent error.
type ErrorKind string

const (
	KindGeneric             ErrorKind = "agent_error"
	KindUnknownCommand      ErrorKind = "unknown_command"
	KindCommandExecution    ErrorKind = "command_execution_error"
	KindInvalidOperation    ErrorKind = "invalid_operation"
	KindInvalidArgument     ErrorKind = "invalid_argument"
	KindOperationNotAllowed ErrorKind = "operation_not_allowed"
	KindCodeExecution       ErrorKind = "code_execution_error"
	KindDuplicateOperation  ErrorKind = "duplicate_operation"
)

// AgentError is a recoverable error raised by a command or validator. Execute
// turns it into an ActionErrorResult instead of returning it.
type AgentError struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Cause   error
}

func (e *AgentError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Hint != "" {
		return msg + " " + e.Hint
	}
	return msg
}

func (e *AgentError) Unwrap() error { return e.Cause }

// NewAgentError creates an AgentError of the given kind.
func NewAgentError(kind ErrorKind, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// UnknownCommandError reports a command name that matches nothing.
func UnknownCommandError(name string) *AgentError {
	return &AgentError{
		Kind:    KindUnknownCommand,
		Message: fmt.Sprintf("Cannot execute command '%s': unknown command.", name),
		Hint:    "Do not try to use this command again.",
	}
}

// CommandExecutionError wraps a non-agent failure raised inside a handler.
func CommandExecutionError(err error) *AgentError {
	return &AgentError{Kind: KindCommandExecution, Message: err.Error(), Cause: err}
}

// InvalidOperationError reports a command rejected by its validity predicate.
func InvalidOperationError(reason string) *AgentError {
	return &AgentError{Kind: KindInvalidOperation, Message: reason}
}

// InvalidArgumentError reports bad command arguments.
func InvalidArgumentError(format string, args ...any) *AgentError {
	return NewAgentError(KindInvalidArgument, format, args...)
}

// OperationNotAllowedError reports an operation forbidden by configuration.
func OperationNotAllowedError(format string, args ...any) *AgentError {
	return NewAgentError(KindOperationNotAllowed, format, args...)
}

// CodeExecutionError reports code that ran but failed.
func CodeExecutionError(output string) *AgentError {
	return &AgentError{Kind: KindCodeExecution, Message: output}
}

// DuplicateOperationError reports a repeated side-effecting operation.
func DuplicateOperationError(format string, args ...any) *AgentError {
	return NewAgentError(KindDuplicateOperation, format, args...)
}

// AgentTerminatedError is the fatal shutdown signal. Execute never converts
// it into a result.
type AgentTerminatedError struct {
	Reason string
}

func (e *AgentTerminatedError) Error() string {
	if e.Reason == "" {
		return "agent terminated"
	}
	return "agent terminated: " + e.Reason
}

// ReparseExhaustedError is returned by ProposeAction when every attempt of
// the reparse budget failed.
type ReparseExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ReparseExhaustedError) Error() string {
	return fmt.Sprintf("no valid action after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ReparseExhaustedError) Unwrap() error { return e.Err }

// ComponentError reports a failing component hook.
type ComponentError struct {
	Component string
	Hook      string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s: %s: %v", e.Component, e.Hook, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// IsTerminated reports whether err carries the termination signal.
func IsTerminated(err error) bool {
	var t *AgentTerminatedError
	return errors.As(err, &t)
}

// AsAgentError returns the AgentError in err's chain, if any.
func AsAgentError(err error) (*AgentError, bool) {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
