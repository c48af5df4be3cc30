package nodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
)

func ventDescriptor(name string) Descriptor {
	return Descriptor{
		Address:  address.DeriveChild(name, "12345678"),
		Parent:   "12345678",
		Name:     "R1_" + name,
		Kind:     KindVent,
		Resource: flairapi.NewResource("vents", "v-"+name, map[string]interface{}{"name": name}),
	}
}

func TestRegistry_Upsert(t *testing.T) {
	t.Run("first upsert creates, second updates", func(t *testing.T) {
		r := NewRegistry()
		d := ventDescriptor("Vent 1")

		assert.Nil(t, r.Get(d.Address))

		rec, created := r.Upsert(d)
		require.NotNil(t, rec)
		assert.True(t, created)
		assert.Equal(t, d.Address, rec.Address())
		assert.Equal(t, KindVent, rec.Kind())

		again, created := r.Upsert(d)
		assert.False(t, created)
		assert.Same(t, rec, again)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("update refreshes name and resource but keeps slot state", func(t *testing.T) {
		r := NewRegistry()
		d := ventDescriptor("Vent 1")

		rec, _ := r.Upsert(d)
		rec.SetSlot(DriverOpen, 55)

		d2 := d
		d2.Name = "R2_Vent 1"
		d2.Parent = "99999999"
		d2.Resource = flairapi.NewResource("vents", "v-new", nil)
		r.Upsert(d2)

		assert.Equal(t, "R2_Vent 1", rec.Name())
		assert.Equal(t, "v-new", rec.Resource().ID)
		assert.Equal(t, address.Address("12345678"), rec.Parent())

		open, ok := rec.Slot(DriverOpen)
		assert.True(t, ok)
		assert.Equal(t, 55.0, open)
	})

	t.Run("a nil resource does not replace a known one", func(t *testing.T) {
		r := NewRegistry()
		d := ventDescriptor("Vent 1")
		rec, _ := r.Upsert(d)

		cached := d
		cached.Resource = nil
		r.Upsert(cached)

		assert.NotNil(t, rec.Resource())
	})

	t.Run("concurrent upserts of the same address create one record", func(t *testing.T) {
		r := NewRegistry()
		d := ventDescriptor("Vent 1")

		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, c := r.Upsert(d); c {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, 1, r.Len())
	})
}

func TestRegistry_Restore(t *testing.T) {
	r := NewRegistry()
	d := ventDescriptor("Vent 1")

	assert.True(t, r.Restore(d))
	rec := r.Get(d.Address)
	require.NotNil(t, rec)
	assert.Nil(t, rec.Resource())
	assert.Equal(t, d.Name, rec.Name())

	assert.False(t, r.Restore(d))

	// discovery later attaches the resource to the restored record
	again, created := r.Upsert(d)
	assert.False(t, created)
	assert.Same(t, rec, again)
	assert.NotNil(t, rec.Resource())
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Upsert(ventDescriptor(fmt.Sprintf("Vent %d", i)))
	}

	all := r.All()
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1].Address()), string(all[i].Address()))
	}
}

func TestRecord(t *testing.T) {
	t.Run("slots start at their defaults", func(t *testing.T) {
		rec, _ := NewRegistry().Upsert(ventDescriptor("Vent 1"))

		for _, def := range KindVent.Slots() {
			v, ok := rec.Slot(def.Driver)
			assert.True(t, ok, def.Driver)
			assert.Equal(t, def.Default, v)
		}
	})

	t.Run("SetSlot reports changes", func(t *testing.T) {
		rec, _ := NewRegistry().Upsert(ventDescriptor("Vent 1"))

		assert.False(t, rec.SetSlot(DriverOpen, 0))
		assert.True(t, rec.SetSlot(DriverOpen, 40))
		assert.False(t, rec.SetSlot(DriverOpen, 40))
	})

	t.Run("refresh state is tracked", func(t *testing.T) {
		rec, _ := NewRegistry().Upsert(ventDescriptor("Vent 1"))

		when, err := rec.LastRefresh()
		assert.True(t, when.IsZero())
		assert.NoError(t, err)

		rec.MarkRefreshed(nil)
		when, _ = rec.LastRefresh()
		assert.False(t, when.IsZero())

		rec.MarkRefreshed(errors.New("timeout"))
		again, err := rec.LastRefresh()
		assert.Equal(t, when, again)
		assert.EqualError(t, err, "timeout")
	})

	t.Run("cached refreshes follow the resource", func(t *testing.T) {
		r := NewRegistry()
		d := ventDescriptor("Vent 1")
		rec, _ := r.Upsert(d)

		rec.MarkFromResource()
		first, err := rec.LastRefresh()
		assert.NoError(t, err)
		assert.False(t, first.IsZero())

		rec.MarkRefreshed(errors.New("write failed"))
		rec.MarkFromResource()
		again, err := rec.LastRefresh()
		assert.Equal(t, first, again)
		assert.EqualError(t, err, "write failed")

		r.Upsert(d)
		rec.MarkFromResource()
		later, err := rec.LastRefresh()
		assert.NoError(t, err)
		assert.True(t, later.After(first))
	})

	t.Run("a fetched resource clears the error", func(t *testing.T) {
		rec, _ := NewRegistry().Upsert(ventDescriptor("Vent 1"))
		rec.MarkRefreshed(errors.New("write failed"))

		rec.MarkResourceFetched()

		when, err := rec.LastRefresh()
		assert.NoError(t, err)
		assert.False(t, when.IsZero())
	})

	t.Run("snapshot carries the room", func(t *testing.T) {
		d := ventDescriptor("Vent 1")
		d.Room = flairapi.NewResource("rooms", "r-1", nil)
		rec, _ := NewRegistry().Upsert(d)

		assert.Equal(t, "r-1", rec.Snapshot().RoomID)
	})

	t.Run("snapshot lists drivers in declaration order", func(t *testing.T) {
		rec, _ := NewRegistry().Upsert(ventDescriptor("Vent 1"))
		rec.SetSlot(DriverOpen, 40)

		s := rec.Snapshot()
		assert.Equal(t, "FLAIR_VENT", s.NodeDef)
		assert.Equal(t, "v-Vent 1", s.RemoteID)
		require.Len(t, s.Drivers, len(KindVent.Slots()))
		assert.Equal(t, DriverActive, s.Drivers[0].Driver)
		assert.Equal(t, DriverOpen, s.Drivers[1].Driver)
		assert.Equal(t, 40.0, s.Drivers[1].Value)
		assert.Equal(t, UOMPercent, s.Drivers[1].UOM)

		b, err := json.Marshal(s)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"kind":"vent"`)
	})
}

func TestKind(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid())
		assert.NotEmpty(t, k.NodeDefID())
		assert.NotEmpty(t, k.Slots())

		parsed, err := ParseKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("thermostat")
	assert.Error(t, err)
	assert.False(t, Kind(0).Valid())
}
