// Package httputil provides the JSON response helpers, request parsing and
// cross-cutting middleware shared by every HTTP handler.
//
// Errors are always written as {"error": "..."}; paged lists as
// {"items": [...], "total": N}.
//
//	id, ok := httputil.ParsePathIDOrError(w, r, "id")
//	if !ok {
//		return
//	}
//	paging, err := httputil.ParsePaging(r)
//
// Middleware order used by the API server:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
