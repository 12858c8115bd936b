// Package agentloop implements the agent cycle: propose an action, execute
// it, and let the pipeline observe the outcome.
//
// An Agent is built over an ordered pipeline of components. A component is
// any value; what it contributes is decided by the optional interfaces it
// implements (MessageProvider, CommandProvider, ResponseParser,
// AfterParsingObserver, ExecutionObserver). Pipeline order decides the order
// of prompt messages and which command wins when two share a name: the later
// one does.
//
// Each cycle has two halves:
//
//   - ProposeAction collects commands and messages, calls the model through a
//     ModelTransport and runs the parsers. A parse or validation failure is
//     fed back to the model as a system message and retried, up to
//     AgentSettings.MaxParseRetries calls in total.
//   - Execute runs the chosen command. Failures come back as an
//     ActionErrorResult, oversized output is replaced by an error, and
//     observers see the final result. Only AgentTerminatedError escapes.
//
// # Quick Start
//
//	transport := agentloop.NewLLMTransport(client, "gpt-4o")
//	agent, err := agentloop.NewAgent(agentloop.DefaultAgentSettings(), transport, pipeline,
//	    agentloop.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer agent.Close()
//
//	for {
//	    proposal, err := agent.ProposeAction(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _, err = agent.Execute(ctx, proposal.CommandName, proposal.CommandArgs, "")
//	    if agentloop.IsTerminated(err) {
//	        break
//	    }
//	}
package agentloop
