package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/controller"
	"github.com/jake-scott/flair-bridge/internal/pkg/discovery"
	"github.com/jake-scott/flair-bridge/internal/pkg/drivers"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi/flairtest"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub/hubtest"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

type stubDiscoverer struct {
	result bool
}

func (s stubDiscoverer) Discover(ctx context.Context) bool { return s.result }

var ventAddr = address.DeriveChild("Vent 1", address.Derive("Kitchen"))

func newTestRouter(t *testing.T, start bool) (*mux.Router, *flairtest.Graph) {
	g := flairtest.NewGraph()
	s := g.Structure("s1", "Home", nil)
	r := g.Child(s, flairapi.RelRooms, "rooms", "r1", "Kitchen", nil)
	g.Child(r, flairapi.RelVents, "vents", "v1", "Vent 1", map[string]interface{}{"percent-open": 0.0})

	h := hubtest.NewPermissive()
	ctl := controller.New(flairapi.Credentials{ClientID: "id", ClientSecret: "secret"},
		nodes.NewRegistry(), drivers.NewEngine(g, h), h)
	ctl.SetDiscoverer(stubDiscoverer{result: true})

	if start {
		require.NoError(t, ctl.Start(context.Background()))
	}

	descs, err := discovery.NewWalker(g).Walk(context.Background())
	require.NoError(t, err)
	ctl.ApplyDiscovery(context.Background(), descs)

	router := mux.NewRouter()
	NewNodesHandler(ctl).Register(router)

	return router, g
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNodesHandler(t *testing.T) {
	t.Run("health reflects controller status", func(t *testing.T) {
		router, _ := newTestRouter(t, true)
		resp := do(router, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), `"nodes":3`)

		router, _ = newTestRouter(t, false)
		resp = do(router, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})

	t.Run("list nodes", func(t *testing.T) {
		router, _ := newTestRouter(t, true)
		resp := do(router, http.MethodGet, "/nodes", "")
		require.Equal(t, http.StatusOK, resp.Code)

		var snaps []map[string]interface{}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snaps))
		assert.Len(t, snaps, 3)
	})

	t.Run("get one node", func(t *testing.T) {
		router, _ := newTestRouter(t, true)

		resp := do(router, http.MethodGet, "/nodes/"+string(ventAddr), "")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), `"nodedef":"FLAIR_VENT"`)

		resp = do(router, http.MethodGet, "/nodes/00000000", "")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("command reports the stored value", func(t *testing.T) {
		router, g := newTestRouter(t, true)
		g.OnUpdate(func(res *flairapi.Resource, requested map[string]interface{}) map[string]interface{} {
			return map[string]interface{}{"percent-open": 40.0}
		})

		resp := do(router, http.MethodPost, "/nodes/"+string(ventAddr)+"/commands", `{"command":"set_open","value":"42"}`)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		var body struct {
			Drivers []nodes.DriverValue `json:"drivers"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

		found := false
		for _, d := range body.Drivers {
			if d.Driver == nodes.DriverOpen {
				found = true
				assert.Equal(t, 40.0, d.Value)
			}
		}
		assert.True(t, found)
	})

	t.Run("command errors map to status codes", func(t *testing.T) {
		router, _ := newTestRouter(t, true)
		path := "/nodes/" + string(ventAddr) + "/commands"

		tests := []struct {
			name string
			path string
			body string
			want int
		}{
			{"unknown command", path, `{"command":"SET_MODE","value":"1"}`, http.StatusBadRequest},
			{"bad value", path, `{"command":"SET_OPEN","value":"lots"}`, http.StatusBadRequest},
			{"missing command", path, `{"value":"1"}`, http.StatusBadRequest},
			{"unknown field", path, `{"command":"QUERY","extra":1}`, http.StatusBadRequest},
			{"two objects", path, `{"command":"QUERY"}{}`, http.StatusBadRequest},
			{"unknown node", "/nodes/00000000/commands", `{"command":"QUERY"}`, http.StatusNotFound},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := do(router, http.MethodPost, tt.path, tt.body)
				assert.Equal(t, tt.want, resp.Code, resp.Body.String())
				assert.Contains(t, resp.Body.String(), `"error"`)
			})
		}
	})

	t.Run("controller commands", func(t *testing.T) {
		router, _ := newTestRouter(t, true)

		resp := do(router, http.MethodPost, "/nodes/controller/commands", `{"command":"QUERY"}`)
		assert.Equal(t, http.StatusNoContent, resp.Code)
	})

	t.Run("non JSON bodies are rejected", func(t *testing.T) {
		router, _ := newTestRouter(t, true)

		req := httptest.NewRequest(http.MethodPost, "/nodes/"+string(ventAddr)+"/commands", strings.NewReader("command=QUERY"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestNodesHandler_Discover(t *testing.T) {
	for _, tt := range []struct {
		started bool
		want    int
	}{
		{true, http.StatusAccepted},
		{false, http.StatusConflict},
	} {
		h := hubtest.NewPermissive()
		ctl := controller.New(flairapi.Credentials{}, nodes.NewRegistry(), drivers.NewEngine(flairtest.NewGraph(), h), h)
		ctl.SetDiscoverer(stubDiscoverer{result: tt.started})

		router := mux.NewRouter()
		NewNodesHandler(ctl).Register(router)

		resp := do(router, http.MethodPost, "/discover", "")
		assert.Equal(t, tt.want, resp.Code)
	}
}
