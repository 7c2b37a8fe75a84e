// Package sched provides the polling dispatcher. A Scheduler ticks on a
// fixed interval, claims due items from the store in batches, and
// dispatches each item to its platform adapter on its own goroutine,
// bounded by a weighted semaphore. Rate limiting, circuit breaking, and
// the middleware chain all run on the dispatch path; outcomes are routed
// to the retry coordinator.
package sched
