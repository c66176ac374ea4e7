// Package service implements the task-mutation orchestrator: the staged
// coordinator that every task and project mutation flows through.
//
// Each mutation runs the same strictly ordered pipeline. A stage failure
// short-circuits everything after it:
//
//  1. authorize the actor against the target project and action class
//  2. resolve every foreign reference in the request through the user
//     directory, concurrently, all-or-nothing
//  3. check domain invariants (dependency acyclicity, date ranges,
//     milestone bounds, progress clamping)
//  4. persist through one per-record atomic write
//  5. publish fire-and-forget side-effect events
//
// Stage 5 is the partial-failure boundary: once stage 4 commits, the
// mutation is reported successful no matter what happens to the outbound
// events. Publish failures are logged and swallowed, never surfaced.
package service
