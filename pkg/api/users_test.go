package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/auth"
)

func TestUsers_Me(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/users/me", "viewer", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "Vera Viewer", me.DisplayName)
	assert.True(t, me.ShowReleaseDialogue)
	assert.False(t, me.ShowFirstLoginDialogue)
	require.NotNil(t, me.Identity)
	assert.Equal(t, "Viewer", me.Identity.Role)
}

func TestUsers_MeSkipsAreaAuthorization(t *testing.T) {
	env := newTestEnv(t, nil)

	// planner has no Administration or User rows but may edit its own flags
	env.users.users["oid-planner"] = &auth.User{ID: 2, ObjectID: "oid-planner", DisplayName: "Pat Planner"}
	w := env.do(http.MethodPut, "/api/users/me/dialogues", "planner", map[string]bool{"show_first_login_dialogue": false})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUsers_UpdateDialogues(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPut, "/api/users/me/dialogues", "viewer", map[string]bool{"show_release_dialogue": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NotNil(t, env.users.release)
	assert.False(t, *env.users.release)
	assert.Nil(t, env.users.firstLogin)

	var me MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.False(t, me.ShowReleaseDialogue)
}

func TestUsers_UpdateDialoguesRequiresAFlag(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPut, "/api/users/me/dialogues", "viewer", map[string]bool{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, env.users.release)
}

func TestUsers_UnknownRecord(t *testing.T) {
	env := newTestEnv(t, nil)

	// admin resolves to an identity but the store has no row for it
	w := env.do(http.MethodGet, "/api/users/me", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPut, "/api/users/me/dialogues", "admin", map[string]bool{"show_release_dialogue": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
