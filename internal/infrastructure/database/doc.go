// Package database provides the SQLite connection behind the print journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Health checks and lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to its owner (0600)
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or have defaults, and
// each .up.sql has a matching .down.sql.
package database
