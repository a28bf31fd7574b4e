// Package taskstore records the execution state of every task in a run.
//
// State is ephemeral: it lives for one run and is rebuilt from the file
// system on the next one (a task whose outputs exist is Cached). The
// in-memory store keeps statuses and errors in sync.Maps because the
// workload is many concurrent writes to independent keys: every worker
// updates its own task while the progress reporter reads counts.
package taskstore
