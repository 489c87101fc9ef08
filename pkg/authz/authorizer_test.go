package authz

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
)

type matrix struct {
	users map[string]map[string]auth.AreaPermission
	err   error
	asked []string
}

func (m *matrix) GetAreaPermission(ctx context.Context, objectID, area string) (auth.AreaPermission, error) {
	m.asked = append(m.asked, area)
	if m.err != nil {
		return auth.AreaPermission{}, m.err
	}
	rows, ok := m.users[objectID]
	if !ok {
		return auth.AreaPermission{}, auth.ErrUserNotFound
	}
	row, ok := rows[area]
	if !ok {
		return auth.AreaPermission{}, auth.ErrNoPermissionEntry
	}
	return row, nil
}

func testOptions() Options {
	return Options{Logger: observability.NewLogger(observability.ErrorLevel, io.Discard)}
}

func TestAuthorize_AnonymousModeAllowsEverything(t *testing.T) {
	src := &matrix{err: errors.New("must not be called")}
	a := NewAuthorizer(src, nil, Options{AnonymousMode: true})

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, "TRACE"} {
		for _, req := range []Request{
			{Method: method},
			{ObjectID: "oid-unknown", Controller: "Job", Method: method},
		} {
			d, err := a.Authorize(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, ReasonAnonymous, d.Reason)
		}
	}
	assert.Empty(t, src.asked)
}

func TestAuthorize_MissingObjectID(t *testing.T) {
	a := NewAuthorizer(&matrix{}, nil, testOptions())

	_, err := a.Authorize(context.Background(), Request{Controller: "Job", Method: http.MethodPost})
	assert.ErrorIs(t, err, auth.ErrMissingObjectID)
}

func TestAuthorize_PresentTupleFollowsFlags(t *testing.T) {
	rows := map[string]auth.AreaPermission{
		"Job":       {Area: "Job", Create: true, Edit: false, Delete: true},
		"Equipment": {Area: "Equipment", Create: false, Edit: true, Delete: false},
	}
	a := NewAuthorizer(&matrix{users: map[string]map[string]auth.AreaPermission{"oid-1": rows}}, nil, testOptions())

	tests := []struct {
		controller string
		method     string
		want       bool
	}{
		{"Job", http.MethodPost, true},
		{"Job", http.MethodPut, false},
		{"Job", http.MethodPatch, false},
		{"Job", http.MethodDelete, true},
		{"Equipment", http.MethodPost, false},
		{"Equipment", http.MethodPut, true},
		{"Equipment", http.MethodPatch, true},
		{"Equipment", http.MethodDelete, false},
	}
	for _, tt := range tests {
		t.Run(tt.controller+" "+tt.method, func(t *testing.T) {
			d, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Controller: tt.controller, Method: tt.method})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Allowed)
			assert.Equal(t, tt.controller, d.Area)
			if tt.want {
				assert.NoError(t, d.Err())
			} else {
				assert.ErrorIs(t, d.Err(), auth.ErrForbidden)
				assert.Equal(t, ReasonNotGranted, d.Reason)
			}
		})
	}
}

func TestAuthorize_AbsentTupleIsExplicitDeny(t *testing.T) {
	src := &matrix{users: map[string]map[string]auth.AreaPermission{"oid-1": {}}}
	a := NewAuthorizer(src, nil, testOptions())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		d, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Controller: "Downtime", Method: method})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonNoEntry, d.Reason)
		assert.ErrorIs(t, d.Err(), auth.ErrForbidden)
	}
}

func TestAuthorize_SafeMethodsSkipTheMatrix(t *testing.T) {
	src := &matrix{users: map[string]map[string]auth.AreaPermission{"oid-1": {}}}
	a := NewAuthorizer(src, nil, testOptions())

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		d, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Controller: "Job", Method: method})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.Empty(t, src.asked)
}

func TestAuthorize_AliasedControllersShareArea(t *testing.T) {
	src := &matrix{users: map[string]map[string]auth.AreaPermission{
		"oid-1": {"Maintenance": {Area: "Maintenance", Edit: true}},
	}}
	a := NewAuthorizer(src, DefaultAreaMap(), testOptions())

	for _, controller := range []string{"MaintenanceSchedule", "MaintenanceTask", "maintenancerequest"} {
		d, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Controller: controller, Method: http.MethodPut})
		require.NoError(t, err)
		assert.True(t, d.Allowed, controller)
		assert.Equal(t, "Maintenance", d.Area)
	}
}

func TestAuthorize_Errors(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		a := NewAuthorizer(&matrix{users: map[string]map[string]auth.AreaPermission{}}, nil, testOptions())
		_, err := a.Authorize(context.Background(), Request{ObjectID: "oid-x", Controller: "Job", Method: http.MethodPost})
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("lookup failure", func(t *testing.T) {
		boom := errors.New("db down")
		a := NewAuthorizer(&matrix{err: boom}, nil, testOptions())
		_, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Controller: "Job", Method: http.MethodPost})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no controller", func(t *testing.T) {
		a := NewAuthorizer(&matrix{}, nil, testOptions())
		d, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Method: http.MethodPost})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonNoController, d.Reason)
	})

	t.Run("unsupported method", func(t *testing.T) {
		a := NewAuthorizer(&matrix{}, nil, testOptions())
		d, err := a.Authorize(context.Background(), Request{ObjectID: "oid-1", Controller: "Job", Method: "TRACE"})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})
}

func TestAuthorize_RecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	src := &matrix{users: map[string]map[string]auth.AreaPermission{
		"oid-1": {"Job": {Area: "Job", Create: true}},
	}}
	opts := testOptions()
	opts.Metrics = metrics
	a := NewAuthorizer(src, nil, opts)

	ctx := context.Background()
	_, _ = a.Authorize(ctx, Request{ObjectID: "oid-1", Controller: "Job", Method: http.MethodPost})
	_, _ = a.Authorize(ctx, Request{ObjectID: "oid-1", Controller: "Job", Method: http.MethodDelete})
	_, _ = a.Authorize(ctx, Request{ObjectID: "oid-1", Controller: "Factory", Method: http.MethodDelete})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("Job", "create", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("Job", "delete", "deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("Factory", "delete", "deny")))
}
