// Package database provides the SQLite store behind the lightbridge device
// roster.
//
// The store holds one table, devices, read by roster.SQLiteSource on every
// reload. Operators add rows (id, local key, ip, name) and trigger
// bridge:reload; rows are never deleted by the bridge itself.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the migrations package and registered with
// MigrationsFS at init. Each migration has a .up.sql and a .down.sql file
// named YYYYMMDD_HHMMSS_description.
package database
