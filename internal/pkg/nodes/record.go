package nodes

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
)

// ErrUnknownNode is returned when an address is not in the registry
var ErrUnknownNode = errors.New("unknown node")

// Descriptor is what discovery knows about one node
type Descriptor struct {
	Address address.Address
	Parent  address.Address
	Name    string
	Kind    Kind

	Resource *flairapi.Resource

	// Room is the owning room's resource for pucks and vents
	Room *flairapi.Resource
}

// Record is one node in the registry.  Address, parent and kind never change
// once the record exists.  Discovery sets the name and resource references,
// sync and commands set slot values.
type Record struct {
	address address.Address
	parent  address.Address
	kind    Kind

	mu          sync.RWMutex
	name        string
	resource    *flairapi.Resource
	room        *flairapi.Resource
	slots       map[string]float64
	lastRefresh time.Time
	lastErr     error
	lastErrAt   time.Time

	// when the resource's attributes last came from the server
	resourceAt time.Time
}

func newRecord(d Descriptor) *Record {
	r := &Record{
		address:  d.Address,
		parent:   d.Parent,
		kind:     d.Kind,
		name:     d.Name,
		resource: d.Resource,
		room:     d.Room,
		slots:    make(map[string]float64),
	}
	if d.Resource != nil {
		r.resourceAt = time.Now()
	}

	for _, def := range d.Kind.Slots() {
		r.slots[def.Driver] = def.Default
	}

	return r
}

// update applies a rediscovered descriptor.  A nil resource never replaces
// a known one.
func (r *Record) update(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Name != "" {
		r.name = d.Name
	}
	if d.Resource != nil {
		r.resource = d.Resource
		r.resourceAt = time.Now()
	}
	if d.Room != nil {
		r.room = d.Room
	}
}

func (r *Record) Address() address.Address { return r.address }
func (r *Record) Parent() address.Address  { return r.parent }
func (r *Record) Kind() Kind               { return r.kind }

func (r *Record) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Resource returns the backing Flair resource, nil until discovery has seen
// the node in this process
func (r *Record) Resource() *flairapi.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resource
}

// SetSlot stores a slot value and reports whether it changed
func (r *Record) SetSlot(driver string, value float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.slots[driver]
	r.slots[driver] = value

	return !ok || old != value
}

func (r *Record) Slot(driver string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.slots[driver]
	return v, ok
}

// Slots returns a copy of the slot values
func (r *Record) Slots() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.slots))
	for k, v := range r.slots {
		out[k] = v
	}

	return out
}

// MarkRefreshed records the outcome of a read from, or write to, the
// server.  A failure keeps the time of the last success.
func (r *Record) MarkRefreshed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if err != nil {
		r.lastErr = err
		r.lastErrAt = now
		return
	}

	r.lastRefresh = now
	r.lastErr = nil
}

// MarkResourceFetched records that the resource's attributes were just
// loaded from the server, eg. by the reply to an update
func (r *Record) MarkResourceFetched() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.resourceAt = now
	r.lastRefresh = now
	r.lastErr = nil
}

// MarkFromResource records a refresh served only from the cached resource.
// The record is as fresh as the resource, and an error is only cleared by a
// resource fetched after it.
func (r *Record) MarkFromResource() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resourceAt.After(r.lastRefresh) {
		r.lastRefresh = r.resourceAt
	}
	if r.lastErr != nil && r.resourceAt.After(r.lastErrAt) {
		r.lastErr = nil
	}
}

// LastRefresh returns the time of the last successful refresh and the error
// of the last attempt, if any
func (r *Record) LastRefresh() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh, r.lastErr
}

// DriverValue is one slot in a Snapshot
type DriverValue struct {
	Driver string  `json:"driver"`
	Value  float64 `json:"value"`
	UOM    UOM     `json:"uom"`
}

// Snapshot is a point in time copy of a record, for display
type Snapshot struct {
	Address     address.Address `json:"address"`
	Parent      address.Address `json:"parent"`
	Name        string          `json:"name"`
	Kind        Kind            `json:"kind"`
	NodeDef     string          `json:"nodedef"`
	RemoteID    string          `json:"remote-id,omitempty"`
	RoomID      string          `json:"room-id,omitempty"`
	Drivers     []DriverValue   `json:"drivers"`
	LastRefresh *time.Time      `json:"last-refresh,omitempty"`
	LastError   string          `json:"last-error,omitempty"`
}

func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Address: r.address,
		Parent:  r.parent,
		Name:    r.name,
		Kind:    r.kind,
		NodeDef: r.kind.NodeDefID(),
	}

	if r.resource != nil {
		s.RemoteID = r.resource.ID
	}
	if r.room != nil {
		s.RoomID = r.room.ID
	}
	if !r.lastRefresh.IsZero() {
		t := r.lastRefresh
		s.LastRefresh = &t
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}

	for _, def := range r.kind.Slots() {
		s.Drivers = append(s.Drivers, DriverValue{
			Driver: def.Driver,
			Value:  r.slots[def.Driver],
			UOM:    def.UOM,
		})
	}

	return s
}
