// Package database provides SQLite connectivity for Gray Logic Fleet.
//
// This package manages:
//   - The connection, with WAL mode and a single writer
//   - Versioned schema migrations read from an fs.FS
//   - Transaction helpers
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    log.Fatal(err)
//	}
package database
