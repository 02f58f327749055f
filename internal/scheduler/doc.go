// Package scheduler owns the runtime state of every widget: whether it is
// visible and the single timer armed for its next transition.
//
// All entry state is mutated on one event loop goroutine. Timer callbacks,
// weather poll results, storage completions and API calls are marshaled onto
// that loop as closures, so reconciliation of an entry never overlaps itself.
// Network and storage I/O run off the loop and join back with their result.
package scheduler
