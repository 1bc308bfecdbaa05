// Package engine executes automatic processes incrementally.
//
// One execution of a process reads the target's end date, derives the source cursor
// from it, reads the unprocessed tail of the source, applies the process and appends
// the result to the target:
//
//	target.EndDate ──> Process.StartAfter ──> source.GetData(after)
//	                                              │
//	                                              ▼
//	                  target.AppendData <── Process.Apply
//
// Because the cursor is derived from the target itself, re-running a process that
// has nothing new to do is a no-op, and a run that failed before appending leaves
// nothing to undo. Appends are all-or-nothing; an append that would not extend the
// target fails with an error matching errors.ErrConflict and is never retried here.
//
// The engine does not serialize runs of the same process. Callers that may run one
// process from several goroutines go through the scheduler package.
package engine
