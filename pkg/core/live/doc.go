// Package live implements the real-time conversation orchestration layer
// for a single phone call between the companion and a caller.
//
// The package sits between recognized speech and synthesized speech. A
// Pipeline carries two directions of events: user utterances flowing up
// toward the conversational model, and generated reply text flowing down
// toward speech synthesis. Components attach as ordered stages; each
// stage may inject events, schedule termination, or transform what it
// received, and forwards everything else unchanged.
//
// Components:
//
//   - SignalDetector: synchronous pattern matching over each utterance,
//     immediate guidance injection, farewell classification.
//   - DirectionEngine: background analysis of the call via the auxiliary
//     model, one turn behind by design, guarded by a circuit breaker.
//   - GoodbyeGate: dual-party farewell state machine with a cancellable
//     hang-up timer.
//   - StreamStripper: removes directive markup from streamed reply text
//     before it reaches synthesis.
//   - Tracker: passive observer that records covered topics, questions,
//     and advice so the model can avoid repeating itself.
//   - ContextCache: TTL/fuzzy cache that prefetches memory lookups the
//     analysis engine anticipates.
//   - PhaseMachine: reminder/main/winding_down/closing call structure,
//     rebuilding an immutable PhaseNode on every transition.
//
// Everything on the synchronous forward path is non-blocking; network
// calls happen only inside supervised background tasks.
package live
