// Package database provides the SQLite handle used by knxnetd.
//
// The database holds two tables: knxnet_status, the last value per group
// address restored into the status pool on start, and knxnet_addresses,
// the addresses seen on the bus with their traffic counters.
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a default,
// and each .up.sql file has a matching .down.sql.
package database
