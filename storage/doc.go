// Package storage defines the series store used by automatic processes.
//
// A Store is a single time series with three operations: read the records after a
// cursor, append records after the current end, and report the end. Processes never
// rewrite history: an append whose first record is not strictly after the stored end
// fails with an error matching errors.ErrConflict, and nothing is written.
//
// Backends:
//   - memstore: in-memory, for tests and one-shot runs
//   - filestore: one CSV file per series under a data directory
//   - kvstore: NATS JetStream KV bucket, one key per series, revision-checked updates
//
// A Provider maps a station and series name to its Store. Names are validated with
// ValidateName so they are safe as path segments and KV key tokens.
//
// Merge and After hold the rules every backend shares, so the conflict semantics are
// identical whichever backend is configured.
package storage
