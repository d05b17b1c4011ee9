// Package events fans receiver change signals out to subscribers.
//
// Events are signals only ("receiver X changed"); subscribers re-read the
// status mirror for the data. Each subscriber owns a mailbox and a
// dispatch goroutine, so Publish never waits on a handler and a slow,
// failing or panicking handler affects nobody else. A subscriber sees
// events in the order they were published.
package events
