package discovery

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

// Walker traverses structures -> rooms -> {pucks, vents} and emits one
// descriptor per entity
type Walker struct {
	api flairapi.Client
}

func NewWalker(api flairapi.Client) *Walker {
	return &Walker{api: api}
}

// Walk fetches the whole resource graph.  Only a failure to list structures
// is returned; failures further down are logged and the affected branch is
// skipped.
func (w *Walker) Walk(ctx context.Context) ([]nodes.Descriptor, error) {
	log := logging.Logger(ctx)

	structures, err := w.api.Structures(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing structures")
	}

	log.Debugf("Discovery found %d structure(s)", len(structures))

	var out []nodes.Descriptor
	for _, structure := range structures {
		out = append(out, w.walkStructure(ctx, structure)...)
	}

	log.Infof("Discovery walked %d node(s)", len(out))

	return out, nil
}

func (w *Walker) walkStructure(ctx context.Context, structure *flairapi.Resource) []nodes.Descriptor {
	name := structure.Name()
	addr := address.Derive(name)

	log := logging.Logger(ctx).WithFields(logrus.Fields{
		"structure": name,
		"address":   addr,
	})

	out := []nodes.Descriptor{{
		Address:  addr,
		Parent:   addr,
		Name:     name,
		Kind:     nodes.KindStructure,
		Resource: structure,
	}}

	rooms, err := w.api.Related(ctx, structure, flairapi.RelRooms)
	if err != nil {
		log.WithError(err).Warn("Cannot list rooms, skipping them")
		return out
	}

	for i, room := range rooms {
		out = append(out, w.walkRoom(ctx, addr, i+1, room)...)
	}

	return out
}

func (w *Walker) walkRoom(ctx context.Context, structureAddr address.Address, ordinal int, room *flairapi.Resource) []nodes.Descriptor {
	name := room.Name()
	addr := address.Derive(name)

	out := []nodes.Descriptor{{
		Address:  addr,
		Parent:   structureAddr,
		Name:     roomScoped(ordinal, name),
		Kind:     nodes.KindRoom,
		Resource: room,
	}}

	out = append(out, w.walkDevices(ctx, room, addr, ordinal, flairapi.RelPucks, nodes.KindPuck)...)
	out = append(out, w.walkDevices(ctx, room, addr, ordinal, flairapi.RelVents, nodes.KindVent)...)

	return out
}

func (w *Walker) walkDevices(ctx context.Context, room *flairapi.Resource, roomAddr address.Address,
	ordinal int, relation string, kind nodes.Kind) []nodes.Descriptor {

	devices, err := w.api.Related(ctx, room, relation)
	if err != nil {
		logging.Logger(ctx).WithError(err).WithFields(logrus.Fields{
			"room":     room.Name(),
			"relation": relation,
		}).Warn("Cannot list room devices, skipping them")
		return nil
	}

	out := make([]nodes.Descriptor, 0, len(devices))
	for _, dev := range devices {
		name := dev.Name()
		out = append(out, nodes.Descriptor{
			Address:  address.DeriveChild(name, roomAddr),
			Parent:   roomAddr,
			Name:     roomScoped(ordinal, name),
			Kind:     kind,
			Resource: dev,
			Room:     room,
		})
	}

	return out
}

func roomScoped(ordinal int, name string) string {
	return fmt.Sprintf("R%d_%s", ordinal, name)
}
