// Package supervisor keeps one control connection per receiver alive.
//
// A Supervisor runs a single goroutine that opens a Channel through the
// Transport, waits for it to drop and opens it again, forever. Failed
// attempts back off along a fixed table (DefaultBackoff) whose last entry
// repeats. When the attempts run past the end of the table the receiver
// is reported unreachable exactly once per failure episode, through the
// log, the event bus and the NotificationSink.
//
// A failure wrapping ErrConfigurationFault is terminal: the supervisor
// moves to StateFaulted and never retries.
//
// Every status push from the live channel is written to the status
// mirror and announced on the event bus. Pushes from superseded attempts
// are dropped; a push that arrives while the channel is still opening is
// held and applied at the Connected transition, so the mirror never shows
// a status before the receiver is connected.
package supervisor
