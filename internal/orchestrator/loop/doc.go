// Package loop runs the agent's tool-use conversation with a language model.
//
// # Overview
//
// A run starts with the user's question and alternates between two steps:
//
//   - AwaitingModel: the turn counter is checked against MaxTurns, a request
//     is built (system prompt, tool definitions, full conversation, cache
//     hints) and sent to the backend.
//   - DispatchingTools: every tool_use block of the reply is executed by the
//     dispatcher, and the ordered tool_result blocks are appended as one user
//     message.
//
// The run ends in Done (natural completion or any other stop reason) or
// Aborted (turn budget, timeout, backend failure).
//
// # Usage
//
//	ctrl := loop.NewController(loop.DefaultConfig(), &loop.Dependencies{
//	    Client:     client,
//	    Dispatcher: tools.NewDispatcher(registry, 0),
//	    Sink:       sink,
//	})
//	result, err := ctrl.Run(ctx, loop.RunRequest{Question: "What is the deadline?"})
//
// Each Run owns its conversation, accumulator and turn counter, so one
// Controller may serve concurrent runs.
//
// # Events
//
// Run writes thinking events while it works and exactly one terminal event:
// done with the *RunResult, or error with the failure kind (see FailureKind).
package loop
