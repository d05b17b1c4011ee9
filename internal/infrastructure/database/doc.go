// Package database provides SQLite storage for Cast Logic Core.
//
// It owns the connection lifecycle (WAL mode, busy timeout, a single
// writer connection) and applies the embedded schema migrations that
// create the receivers and media_items tables.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive. Each version ships a .up.sql and a .down.sql
// file named YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
