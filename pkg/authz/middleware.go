package authz

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/httputil"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// ControllerFromRequest resolves the controller of a routed request.
// Named routes follow the Controller.Action convention; unnamed routes fall
// back to the first path segment after /api/.
func ControllerFromRequest(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			controller, _, _ := strings.Cut(name, ".")
			return controller
		}
	}
	return controllerFromPath(r.URL.Path)
}

func controllerFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	segment, _, _ := strings.Cut(rest, "/")
	return segment
}

// Middleware enforces Authorize on every request. It expects the
// authentication middleware to have stored the principal and the resolved
// identity in the context, and must run after route matching (install it with
// Router.Use). Callers without a resolved identity are rejected even for safe
// methods.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			ObjectID:   auth.PrincipalFromContext(r.Context()).ObjectID(),
			Controller: ControllerFromRequest(r),
			Method:     r.Method,
		}

		logger := observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"controller": req.Controller,
			"method":     req.Method,
		})

		// a principal the claims pipeline passed through (no name) has no user record
		if !a.anonymous && req.ObjectID != "" && auth.IdentityFromContext(r.Context()) == nil {
			logger.Warn("Caller was not resolved to a user")
			httputil.WriteUnauthorized(w, "user not resolved")
			return
		}

		decision, err := a.Authorize(r.Context(), req)
		switch {
		case errors.Is(err, auth.ErrMissingObjectID):
			logger.Warn("Request has no object id claim")
			httputil.WriteUnauthorized(w, "missing object id")
			return
		case errors.Is(err, auth.ErrUserNotFound):
			logger.Warn("Caller has no active user record")
			httputil.WriteUnauthorized(w, "user not found")
			return
		case err != nil:
			httputil.WriteInternalError(w, r, err)
			return
		}

		if !decision.Allowed {
			logger.WithFields(map[string]interface{}{
				"area":       decision.Area,
				"permission": string(decision.Permission),
				"reason":     decision.Reason,
			}).Warn("Request denied")

			event := audit.NewRequestEvent(r, audit.EventAccessDenied, audit.StatusDenied)
			event.Area = decision.Area
			event.Controller = req.Controller
			event.Message = decision.Reason
			if decision.Permission != "" {
				event.WithMetadata("permission", string(decision.Permission))
			}
			audit.Record(r.Context(), a.audit, event)

			httputil.WriteForbidden(w, decision.Err().Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}
