// Package operations stores the plant records behind the CRUD controllers:
// factories, equipment, jobs, downtime and maintenance.
//
// Every record type is served by a Service with the same five operations.
// Search returns one page plus the total number of matches; filters that do
// not apply to a record type are ignored.
//
//	services := operations.NewPostgresServices(db)
//	jobs, total, err := services.Jobs.Search(ctx, operations.Filter{FactoryID: 1, Limit: 25})
//
// Errors wrap ErrNotFound, ErrDuplicate, ErrReference or *ValidationError.
package operations
