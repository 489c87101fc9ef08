// Package storage opens the PostgreSQL connection pool and applies schema
// migrations owned by other packages.
//
//	db, err := storage.Open(ctx, storage.Config{URL: cfg.Database.URL, MaxOpenConns: 20})
//	if err != nil {
//		return err
//	}
//	err = storage.Migrate(ctx, db, logger, append(rbac.Migrations(), operations.Migrations()...))
//
// Migrations are identified by a unique version and applied once each, in
// version order, inside their own transaction.
package storage
