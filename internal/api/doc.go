// Package api provides the HTTP REST API and WebSocket server for Cast Logic Core.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
//
// This package provides:
//   - REST endpoints for receivers, their mirrored status and their queues
//   - Phrase resolution and playback dispatch
//   - WebSocket hub relaying receiver events
//   - API key and JWT authentication with role permissions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API sits between household clients (voice assistants, dashboards,
// scripts) and the receiver registry. Queue edits are applied to the hub's
// queue engine and then pushed to the receiver as a queue.load command;
// receiver events reach WebSocket clients through the event bus.
//
// # Graceful Degradation
//
// The server operates without MQTT: reads and WebSocket connections work,
// and queue edits are kept locally with "synced": false in the response.
package api
