// Package components holds the stock pipeline components for an
// agentloop.Agent: the system prompt, clock and budget notices, user
// interaction, workspace file and process commands, episode history, loop
// detection, random values and the one-shot response format.
//
// Components that touch the filesystem or run processes do so through an
// ExecutionEnvironment scoped to one workspace directory.
package components
