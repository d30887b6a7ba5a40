// Package harness runs scripted simulation scenarios against the kernel.
//
// A scenario declares named processes, each a list of steps, and the events
// that start them. The harness binds every process to a real EventManager,
// so a scenario exercises the kernel's ordering, suspension and pooling
// rather than a model of them.
//
// # Scenario Format
//
// Scenarios are YAML files, or CUE files when the name ends in .cue:
//
//	name: tie-break
//	ticks_per_hour: 3600
//	processes:
//	  A: { steps: [ {wait: 3}, {set: ready} ] }
//	  B: { steps: [ {wait_until: ready}, {release: true} ] }
//	schedule:
//	  - { process: A, delay: 5 }
//	  - { process: B, delay: 5 }
//	expect:
//	  order: [A, B]
//	  final_tick: 8
//
// # Steps
//
//   - wait: N (optional priority) suspends for N ticks
//   - wait_until: flag suspends until the flag is set; release ends it
//   - set / clear: flag changes a flag
//   - start: name runs a child process immediately
//   - schedule: name (delay, priority) queues a process
//   - interrupt: name terminates a parked process
//   - cancel: name cancels its latest pending event
//   - mark: label records a label
//
// Every executed step appends a TraceEvent. The trace is compared with the
// expect block and, in tests, with golden files via AssertGolden.
//
// # Deterministic Testing
//
// The kernel orders events purely by tick, priority and insertion sequence,
// so the same scenario always produces the same trace and the same digest.
package harness
