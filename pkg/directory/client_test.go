package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/auth"
)

func newGraphServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	var server *httptest.Server
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/groups/grp-1/members", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer app-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("$skiptoken") {
		case "":
			assert.Equal(t, "id,mail,userPrincipalName,displayName", r.URL.Query().Get("$select"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]string{
					{"@odata.type": "#microsoft.graph.user", "id": "oid-1", "mail": "ana@plant.example", "displayName": "Ana"},
					{"@odata.type": "#microsoft.graph.group", "id": "grp-nested", "displayName": "Nested"},
				},
				"@odata.nextLink": server.URL + "/groups/grp-1/members?$skiptoken=page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]string{
					{"@odata.type": "#microsoft.graph.user", "id": "oid-2", "userPrincipalName": "ben@plant.example", "displayName": "Ben"},
				},
			})
		}
	})
	mux.HandleFunc("/groups/grp-broken/members", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_GroupMembers(t *testing.T) {
	server := newGraphServer(t)
	client := NewClient(context.Background(), ClientConfig{
		BaseURL:      server.URL + "/",
		TokenURL:     server.URL + "/token",
		ClientID:     "app",
		ClientSecret: "secret",
		Scopes:       []string{"https://graph.example/.default"},
		Timeout:      5 * time.Second,
	})

	members, err := client.GroupMembers(context.Background(), "grp-1")
	require.NoError(t, err)
	assert.Equal(t, []auth.DirectoryMember{
		{ObjectID: "oid-1", Email: "ana@plant.example", DisplayName: "Ana"},
		{ObjectID: "oid-2", Email: "ben@plant.example", DisplayName: "Ben"},
	}, members)
}

func TestClient_GroupMembersErrors(t *testing.T) {
	server := newGraphServer(t)
	client := NewClientWithHTTP(server.URL, &http.Client{})

	_, err := client.GroupMembers(context.Background(), "")
	assert.ErrorContains(t, err, "group id is required")

	_, err = client.GroupMembers(context.Background(), "grp-1")
	assert.ErrorContains(t, err, "status 401")

	authed := NewClient(context.Background(), ClientConfig{BaseURL: server.URL, TokenURL: server.URL + "/token"})
	_, err = authed.GroupMembers(context.Background(), "grp-broken")
	assert.ErrorContains(t, err, "status 429")
}

func TestClient_RefusesForeignNextLink(t *testing.T) {
	var foreignHits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits.Add(1)
		fmt.Fprint(w, `{"value":[]}`)
	}))
	t.Cleanup(foreign.Close)

	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value":           []map[string]string{{"id": "oid-1"}},
			"@odata.nextLink": foreign.URL + "/groups/grp-1/members?$skiptoken=page2",
		})
	}))
	t.Cleanup(graph.Close)

	client := NewClientWithHTTP(graph.URL, &http.Client{})
	_, err := client.GroupMembers(context.Background(), "grp-1")
	assert.ErrorContains(t, err, "leaves the directory host")
	assert.Zero(t, foreignHits.Load())
}
