package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/discovery"
	"github.com/jake-scott/flair-bridge/internal/pkg/drivers"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi/flairtest"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub/hubtest"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

var testCreds = flairapi.Credentials{ClientID: "id", ClientSecret: "secret"}

type memCache struct {
	mu    sync.Mutex
	descs map[address.Address]nodes.Descriptor
	err   error
}

func newMemCache(descs ...nodes.Descriptor) *memCache {
	m := &memCache{descs: make(map[address.Address]nodes.Descriptor)}
	for _, d := range descs {
		m.descs[d.Address] = d
	}
	return m
}

func (m *memCache) Save(ctx context.Context, descs []nodes.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range descs {
		m.descs[d.Address] = d
	}
	return m.err
}

func (m *memCache) Load(ctx context.Context) ([]nodes.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []nodes.Descriptor
	for _, d := range m.descs {
		out = append(out, d)
	}
	return out, m.err
}

type countingDiscoverer struct {
	calls int
}

func (d *countingDiscoverer) Discover(ctx context.Context) bool {
	d.calls++
	return true
}

type harness struct {
	graph *flairtest.Graph
	hub   *hubtest.MockHub
	reg   *nodes.Registry
	ctl   *Controller
	vent  *flairapi.Resource
}

func newHarness(creds flairapi.Credentials) *harness {
	h := &harness{
		graph: flairtest.NewGraph(),
		hub:   hubtest.NewPermissive(),
		reg:   nodes.NewRegistry(),
	}

	s := h.graph.Structure("s1", "Home", nil)
	r := h.graph.Child(s, flairapi.RelRooms, "rooms", "r1", "Kitchen", map[string]interface{}{"active": true})
	h.vent = h.graph.Child(r, flairapi.RelVents, "vents", "v1", "Vent 1", map[string]interface{}{"percent-open": 30.0})

	h.ctl = New(creds, h.reg, drivers.NewEngine(h.graph, h.hub), h.hub)
	return h
}

func (h *harness) discover(t *testing.T) []nodes.Descriptor {
	descs, err := discovery.NewWalker(h.graph).Walk(context.Background())
	require.NoError(t, err)
	h.ctl.ApplyDiscovery(context.Background(), descs)
	return descs
}

func TestController_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("status goes to 1 with credentials", func(t *testing.T) {
		h := newHarness(testCreds)

		require.NoError(t, h.ctl.Start(ctx))

		assert.Equal(t, []address.Address{Address}, h.hub.Nodes())
		assert.Equal(t, []float64{0, 1}, h.hub.DriverCalls(Address, nodes.DriverStatus))
		assert.True(t, h.ctl.Status())
	})

	t.Run("missing credentials are an error", func(t *testing.T) {
		h := newHarness(flairapi.Credentials{ClientID: "id"})

		err := h.ctl.Start(ctx)

		assert.True(t, errors.Is(err, ErrMissingCredentials))
		assert.Equal(t, []float64{0}, h.hub.DriverCalls(Address, nodes.DriverStatus))
		assert.False(t, h.ctl.Status())
	})

	t.Run("cached nodes are restored and announced", func(t *testing.T) {
		h := newHarness(testCreds)
		cached := nodes.Descriptor{Address: "12345678", Parent: "12345678", Name: "Home", Kind: nodes.KindStructure}
		h.ctl.SetCache(newMemCache(cached))

		require.NoError(t, h.ctl.Start(ctx))

		rec := h.reg.Get("12345678")
		require.NotNil(t, rec)
		assert.Nil(t, rec.Resource())
		assert.Equal(t, []address.Address{Address, "12345678"}, h.hub.Nodes())
	})

	t.Run("an unreadable cache is not fatal", func(t *testing.T) {
		h := newHarness(testCreds)
		cache := newMemCache()
		cache.err = errors.New("disk I/O error")
		h.ctl.SetCache(cache)

		assert.NoError(t, h.ctl.Start(ctx))
		assert.Zero(t, h.reg.Len())
	})
}

func TestController_ApplyDiscovery(t *testing.T) {
	t.Run("new nodes are added once", func(t *testing.T) {
		h := newHarness(testCreds)
		cache := newMemCache()
		h.ctl.SetCache(cache)

		descs := h.discover(t)
		h.discover(t)

		assert.Equal(t, 3, h.reg.Len())
		assert.Len(t, h.hub.Nodes(), 3)
		assert.Len(t, cache.descs, len(descs))
	})

	t.Run("restored nodes pick up their resource without being re-added", func(t *testing.T) {
		h := newHarness(testCreds)
		walked, err := discovery.NewWalker(h.graph).Walk(context.Background())
		require.NoError(t, err)
		h.ctl.SetCache(newMemCache(walked...))
		require.NoError(t, h.ctl.Start(context.Background()))

		h.discover(t)

		assert.Len(t, h.hub.Nodes(), 4)
		for _, rec := range h.reg.All() {
			assert.NotNil(t, rec.Resource(), rec.Address())
		}
	})
}

func TestController_HandleCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("node commands go to the engine", func(t *testing.T) {
		h := newHarness(testCreds)
		h.discover(t)
		vent := address.DeriveChild("Vent 1", address.Derive("Kitchen"))

		require.NoError(t, h.ctl.HandleCommand(ctx, vent, "SET_OPEN", "60"))

		snap, err := h.ctl.Node(vent)
		require.NoError(t, err)
		assert.Equal(t, "R1_Vent 1", snap.Name)
		assert.Equal(t, []float64{60}, h.hub.DriverCalls(vent, nodes.DriverOpen))
	})

	t.Run("unknown nodes are an error", func(t *testing.T) {
		h := newHarness(testCreds)

		err := h.ctl.HandleCommand(ctx, "99999999", "QUERY", "")
		assert.True(t, errors.Is(err, nodes.ErrUnknownNode))

		_, err = h.ctl.Node("99999999")
		assert.True(t, errors.Is(err, nodes.ErrUnknownNode))
	})

	t.Run("controller query refreshes everything", func(t *testing.T) {
		h := newHarness(testCreds)
		h.discover(t)
		vent := address.DeriveChild("Vent 1", address.Derive("Kitchen"))

		require.NoError(t, h.ctl.HandleCommand(ctx, Address, drivers.CommandQuery, ""))

		assert.Equal(t, []float64{30}, h.hub.DriverCalls(vent, nodes.DriverOpen))
		assert.Len(t, h.hub.DriverCalls(Address, nodes.DriverStatus), 1)
	})

	t.Run("controller discovery asks the discoverer", func(t *testing.T) {
		h := newHarness(testCreds)
		d := &countingDiscoverer{}

		assert.False(t, h.ctl.Discover(ctx))

		h.ctl.SetDiscoverer(d)
		require.NoError(t, h.ctl.HandleCommand(ctx, Address, drivers.CommandDiscovery, ""))
		assert.Equal(t, 1, d.calls)
	})

	t.Run("other controller commands are unknown", func(t *testing.T) {
		h := newHarness(testCreds)

		err := h.ctl.HandleCommand(ctx, Address, "SET_OPEN", "1")
		assert.True(t, errors.Is(err, drivers.ErrUnknownCommand))
	})
}

func TestController_Heartbeat(t *testing.T) {
	h := newHarness(testCreds)

	for i := 0; i < 4; i++ {
		h.ctl.Heartbeat(context.Background())
	}

	assert.Equal(t, []string{hub.CommandOn, hub.CommandOff, hub.CommandOn, hub.CommandOff}, h.hub.Commands(Address))
}

func TestController_Nodes(t *testing.T) {
	h := newHarness(testCreds)
	h.discover(t)

	snaps := h.ctl.Nodes()
	require.Len(t, snaps, 3)
	for i := 1; i < len(snaps); i++ {
		assert.Less(t, string(snaps[i-1].Address), string(snaps[i].Address))
	}
}
