// Package authz decides whether a caller may run a mutating request.
//
// The controller of a request comes from its gorilla/mux route name
// (Controller.Action) or, for unnamed routes, the first path segment after
// /api/. An AreaMap folds related controllers into one permission area, and
// the caller's role row for that area decides the request:
//
//	POST        -> Create
//	PUT, PATCH  -> Edit
//	DELETE      -> Delete
//
// GET, HEAD and OPTIONS are always allowed. A role without a row for the area
// is denied. In anonymous mode every request is allowed.
//
// The area map can be loaded from YAML and hot-reloaded with AreaWatcher:
//
//	areas:
//	  Maintenance: [MaintenanceSchedule, MaintenanceTask]
//	  QualityAssurance: [Contact, Complaint]
package authz
