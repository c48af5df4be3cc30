package addrcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "state", "nodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	room := nodes.Descriptor{
		Address:  "23456789",
		Parent:   "12345678",
		Name:     "R1_Kitchen",
		Kind:     nodes.KindRoom,
		Resource: flairapi.NewResource("rooms", "r1", nil),
	}
	vent := nodes.Descriptor{
		Address: address.DeriveChild("Vent 1", room.Address),
		Parent:  room.Address,
		Name:    "R1_Vent 1",
		Kind:    nodes.KindVent,
	}

	t.Run("empty cache loads nothing", func(t *testing.T) {
		descs, err := openTemp(t).Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, descs)
	})

	t.Run("saved descriptors come back without resources", func(t *testing.T) {
		c := openTemp(t)
		require.NoError(t, c.Save(ctx, []nodes.Descriptor{vent, room}))

		descs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, descs, 2)
		assert.Less(t, string(descs[0].Address), string(descs[1].Address))

		var got nodes.Descriptor
		for _, d := range descs {
			if d.Address == room.Address {
				got = d
			}
		}
		assert.Equal(t, room.Address, got.Address)
		assert.Equal(t, room.Parent, got.Parent)
		assert.Equal(t, room.Name, got.Name)
		assert.Equal(t, nodes.KindRoom, got.Kind)
		assert.Nil(t, got.Resource)
	})

	t.Run("saving again renames but keeps one row", func(t *testing.T) {
		c := openTemp(t)
		require.NoError(t, c.Save(ctx, []nodes.Descriptor{room}))

		renamed := room
		renamed.Name = "R2_Kitchen"
		require.NoError(t, c.Save(ctx, []nodes.Descriptor{renamed}))

		descs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, descs, 1)
		assert.Equal(t, "R2_Kitchen", descs[0].Name)
	})

	t.Run("survives reopening", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nodes.db")

		c, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, c.Save(ctx, []nodes.Descriptor{room}))
		require.NoError(t, c.Close())

		c, err = Open(path)
		require.NoError(t, err)
		defer c.Close()

		descs, err := c.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, descs, 1)
	})

	t.Run("unknown kinds are skipped", func(t *testing.T) {
		c := openTemp(t)
		require.NoError(t, c.Save(ctx, []nodes.Descriptor{room}))
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO nodes (address, parent, name, kind, updated_at) VALUES ('1', '1', 'x', 'thermostat', 0)`)
		require.NoError(t, err)

		descs, err := c.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, descs, 1)
	})
}
