// Package store provides SQLite-backed durable storage for simulation runs.
//
// The store implements an append-only log with:
//   - Runs: one row per executed scenario, with its config and final digest
//   - Events: every hand-off the EventManager made during the run
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses seq INTEGER (the record sequence), NEVER timestamps
//   - Runs list in insertion order via rowid
//
// Deterministic Query Results:
//   - Event queries MUST include ORDER BY seq ASC
//   - A stored trace re-digests to the digest stored on its run
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Digests are computed by internal/trace from the canonical text form.
package store
