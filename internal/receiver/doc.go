// Package receiver provides the Device Registry for Cast Logic Core.
//
// The registry is the catalogue of playback receivers the hub controls.
// It loads receivers from the SQLite store into an in-memory cache and
// owns one connection supervisor per receiver.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                      Device Registry                        │
//	│                                                             │
//	│  ┌──────────────────┐        ┌──────────────────┐           │
//	│  │     Registry     │───────▶│    Repository    │           │
//	│  │  (registry.go)   │        │ (repository.go)  │           │
//	│  │ • device cache   │        │ • SQLite queries │           │
//	│  │ • supervisors    │        └──────────────────┘           │
//	│  │ • queue adoption │                                       │
//	│  └──────────────────┘                                       │
//	│           │                                                 │
//	└───────────│─────────────────────────────────────────────────┘
//	            ▼
//	  supervisor.Supervisor (one per receiver) ──▶ status.Mirror
//
// Devices are immutable once loaded; every accessor returns a copy.
//
// # Usage
//
//	repo := receiver.NewSQLiteRepository(db.DB)
//	reg := receiver.NewRegistry(receiver.Options{
//	    Repository: repo,
//	    Mirror:     mirror,
//	    Queues:     queues,
//	    Transport:  link,
//	    Events:     bus,
//	})
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	if err := reg.Start(ctx); err != nil {
//	    return err
//	}
//	defer reg.Stop()
package receiver
