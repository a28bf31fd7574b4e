// Package dag holds the task graph of a run: every stage task of every tile
// and the dependency edges between them.
//
// Tasks are added first and linked afterwards, so a task may name a
// dependency that is added later. Link resolves the names into edges and
// rejects unknown dependencies and cycles. Re-adding a task with an
// identical definition is a no-op, which keeps graph construction
// idempotent; a conflicting definition under the same name is an error.
package dag
