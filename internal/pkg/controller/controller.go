// Package controller ties the registry, sync engine and hub together.  It is
// also the bridge's own hub node, with a status driver and commands to
// refresh everything or re-run discovery.
package controller

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/drivers"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	// Address of the controller node
	Address address.Address = "controller"

	Name    = "Flair"
	NodeDef = "controller"
)

var ErrMissingCredentials = errors.New("flair client-id and client-secret must both be configured")

// Cache persists discovered node identities across restarts
type Cache interface {
	Save(ctx context.Context, descs []nodes.Descriptor) error
	Load(ctx context.Context) ([]nodes.Descriptor, error)
}

type Discoverer interface {
	Discover(ctx context.Context) bool
}

type Controller struct {
	creds  flairapi.Credentials
	reg    *nodes.Registry
	engine *drivers.Engine
	hub    hub.Hub

	mu         sync.Mutex
	cache      Cache
	discoverer Discoverer
	status     float64
	heartbeat  bool
}

func New(creds flairapi.Credentials, reg *nodes.Registry, engine *drivers.Engine, h hub.Hub) *Controller {
	return &Controller{
		creds:  creds,
		reg:    reg,
		engine: engine,
		hub:    h,
	}
}

func (c *Controller) SetCache(cache Cache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = cache
}

func (c *Controller) SetDiscoverer(d Discoverer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverer = d
}

// Start creates the controller node and restores cached nodes.  Missing
// credentials leave the status at 0 and return ErrMissingCredentials.
func (c *Controller) Start(ctx context.Context) error {
	log := logging.Logger(ctx)

	err := c.hub.AddNode(ctx, hub.NodeInfo{
		Address: Address,
		Parent:  Address,
		Name:    Name,
		NodeDef: NodeDef,
		Drivers: nodes.ControllerSlots,
	})
	if err != nil {
		log.WithError(err).Warn("Cannot add controller node")
	}
	c.setStatus(ctx, 0)

	if !c.creds.Valid() {
		log.Error("Flair requires client-id and client-secret to be configured")
		return ErrMissingCredentials
	}
	log.Infof("Using Flair credentials %s", c.creds)

	c.restore(ctx)
	c.setStatus(ctx, 1)

	return nil
}

func (c *Controller) restore(ctx context.Context) {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()

	if cache == nil {
		return
	}

	log := logging.Logger(ctx)

	descs, err := cache.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Cannot read address cache, waiting for discovery")
		return
	}

	restored := 0
	for _, d := range descs {
		if !c.reg.Restore(d) {
			continue
		}
		restored++

		if err := c.hub.AddNode(ctx, hub.InfoFor(c.reg.Get(d.Address))); err != nil {
			log.WithError(err).Warnf("Cannot add cached node %s", d.Address)
		}
	}

	log.Infof("Restored %d node(s) from the address cache", restored)
}

func (c *Controller) setStatus(ctx context.Context, v float64) {
	c.mu.Lock()
	c.status = v
	c.mu.Unlock()

	c.reportStatus(ctx)
}

func (c *Controller) reportStatus(ctx context.Context) {
	c.mu.Lock()
	v := c.status
	c.mu.Unlock()

	if err := c.hub.SetDriver(ctx, Address, nodes.DriverStatus, v, nodes.UOMBoolean); err != nil {
		logging.Logger(ctx).WithError(err).Warn("Cannot report controller status")
	}
}

// Status reports whether the controller started with usable credentials
func (c *Controller) Status() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == 1
}

// ApplyDiscovery merges a walk into the registry, announces new nodes to the
// hub and saves the result to the address cache
func (c *Controller) ApplyDiscovery(ctx context.Context, descs []nodes.Descriptor) {
	log := logging.Logger(ctx)

	added := 0
	for _, d := range descs {
		rec, created := c.reg.Upsert(d)
		if !created {
			continue
		}
		added++

		if err := c.hub.AddNode(ctx, hub.InfoFor(rec)); err != nil {
			log.WithError(err).Warnf("Cannot add node %s", rec.Address())
		}
	}

	log.Infof("Discovery added %d new node(s), %d known", added, c.reg.Len())

	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()

	if cache != nil {
		if err := cache.Save(ctx, descs); err != nil {
			log.WithError(err).Warn("Cannot update address cache")
		}
	}
}

// SyncAll refreshes every node, then reports the controller's own drivers
func (c *Controller) SyncAll(ctx context.Context) {
	c.engine.QueryAll(ctx, c.reg.All())
	c.reportStatus(ctx)
}

// Heartbeat alternates DON and DOF from the controller node
func (c *Controller) Heartbeat(ctx context.Context) {
	c.mu.Lock()
	command := hub.CommandOn
	if c.heartbeat {
		command = hub.CommandOff
	}
	c.heartbeat = !c.heartbeat
	c.mu.Unlock()

	logging.Logger(ctx).Debugf("Heartbeat %s", command)

	if err := c.hub.ReportCommand(ctx, Address, command); err != nil {
		logging.Logger(ctx).WithError(err).Warn("Cannot send heartbeat")
	}
}

// Discover asks the discoverer for a new walk
func (c *Controller) Discover(ctx context.Context) bool {
	c.mu.Lock()
	d := c.discoverer
	c.mu.Unlock()

	if d == nil {
		return false
	}

	return d.Discover(ctx)
}

// HandleCommand dispatches a hub command to the controller or a node
func (c *Controller) HandleCommand(ctx context.Context, addr address.Address, command, value string) error {
	if addr == Address {
		switch command {
		case drivers.CommandQuery:
			c.SyncAll(ctx)
			return nil
		case drivers.CommandDiscovery:
			c.Discover(ctx)
			return nil
		}

		return errors.Wrapf(drivers.ErrUnknownCommand, "%s for controller", command)
	}

	rec := c.reg.Get(addr)
	if rec == nil {
		return errors.Wrapf(nodes.ErrUnknownNode, "%s", addr)
	}

	return c.engine.HandleCommand(ctx, rec, command, value)
}

// Nodes returns a snapshot of every node, ordered by address
func (c *Controller) Nodes() []nodes.Snapshot {
	recs := c.reg.All()

	out := make([]nodes.Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Snapshot())
	}

	return out
}

func (c *Controller) Node(addr address.Address) (nodes.Snapshot, error) {
	rec := c.reg.Get(addr)
	if rec == nil {
		return nodes.Snapshot{}, errors.Wrapf(nodes.ErrUnknownNode, "%s", addr)
	}

	return rec.Snapshot(), nil
}
