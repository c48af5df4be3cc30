package nodes

import (
	"sort"
	"sync"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
)

// Registry maps addresses to records.  It is shared by the discovery task and
// the sync/command paths.
type Registry struct {
	lock    *sync.RWMutex
	records map[address.Address]*Record
}

func NewRegistry() *Registry {
	return &Registry{
		lock:    &sync.RWMutex{},
		records: make(map[address.Address]*Record),
	}
}

// Upsert creates the record for d.Address, or updates the name and resource
// references of the existing one.  The bool is true when a record was created.
func (r *Registry) Upsert(d Descriptor) (*Record, bool) {
	r.lock.Lock()
	rec, alreadyExists := r.records[d.Address]
	if !alreadyExists {
		rec = newRecord(d)
		r.records[d.Address] = rec
	}
	r.lock.Unlock()

	if alreadyExists {
		rec.update(d)
	}

	return rec, !alreadyExists
}

// Restore preloads a record from the address cache.  Nothing happens when the
// address is already known, so a cache entry never overrides discovery.
func (r *Registry) Restore(d Descriptor) bool {
	d.Resource = nil
	d.Room = nil

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.records[d.Address]; ok {
		return false
	}
	r.records[d.Address] = newRecord(d)

	return true
}

func (r *Registry) Get(addr address.Address) *Record {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.records[addr]
}

// All returns every record ordered by address
func (r *Registry) All() []*Record {
	r.lock.RLock()
	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.lock.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].address < records[j].address
	})

	return records
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.records)
}
