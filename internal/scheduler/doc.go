// Package scheduler decides which tasks of a linked graph may run next.
//
// It tracks, for every task, how many dependencies are still outstanding and
// streams a task on the Ready channel as soon as that count reaches zero.
// The executor reports back with Complete or Abandon; the scheduler never
// runs anything itself. Separating "what can run" from "how to run it" keeps
// the executor a plain worker pool.
package scheduler
