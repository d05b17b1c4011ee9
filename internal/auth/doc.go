// Package auth authenticates API callers.
//
// Callers present either a configured API key (X-API-Key header) or a
// short-lived JWT obtained by exchanging that key. Every caller carries a
// role, and roles map to a fixed set of permissions:
//
//   - viewer: read receivers, statuses and queues
//   - controller: everything a viewer can do plus queue edits and playback
//
// Keys are compared in constant time and never logged; callers are
// identified by a short fingerprint of their key instead.
package auth
