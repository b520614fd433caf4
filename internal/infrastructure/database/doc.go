// Package database provides SQLite connectivity and schema migrations.
//
// The coordinator keeps its dispatch audit log here. Registry state is not
// persisted: devices are rebuilt from telemetry after a restart.
//
// Migrations are plain SQL files passed in as an fs.FS (normally the
// embedded migrations package). Each runs in its own transaction and is
// recorded in schema_migrations, so Migrate is safe to call at every
// start-up.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
