// Package api provides the HTTP REST API of the plant operations service.
//
// # Routes
//
// Every controller route is named Controller.Action. The authorization
// middleware reads the controller half of the name to find the permission
// area, so a new route must be named or it falls back to the first path
// segment after /api/.
//
//	GET    /api/factories             Factory.List
//	POST   /api/factories             Factory.Create
//	GET    /api/factories/{id}        Factory.Get
//	PUT    /api/factories/{id}        Factory.Update
//	DELETE /api/factories/{id}        Factory.Delete
//
// Equipment, Job, Downtime, MaintenanceSchedule and MaintenanceTask follow
// the same pattern under /api/equipment, /api/jobs, /api/downtime,
// /api/maintenance/schedules and /api/maintenance/tasks. Role administration
// (Role.*), POST /api/directory/sync (Directory.Sync) and the audit trail
// under /api/audit/events (Audit.*) map to the Administration area.
//
// /api/users/me and /api/users/me/dialogues need an authenticated caller but
// no permission row.
//
// # Lists
//
// List endpoints accept page, page_size, search, factory_id, equipment_id,
// from and to, and reply with {"items": [...], "total": N}.
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Services:      operations.NewPostgresServices(db),
//		Users:         store,
//		Roles:         store,
//		Authenticator: authenticator,
//		Authorizer:    authorizer,
//		Logger:        logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
