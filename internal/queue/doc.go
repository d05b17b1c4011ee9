// Package queue maintains the per-receiver playback queue.
//
// Each receiver has an ordered sequence of QueueItem values. Every
// operation that changes the sequence leaves the order-ids as a
// contiguous run 0..N-1 matching the items' positions. Operations on one
// receiver's queue are serialised; different receivers proceed in
// parallel.
//
// Reordering strategies (OrderType) live in a single dispatch table and
// are shared with the phrase resolver through the generic Order function.
package queue
