package hub

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

// Fanout sends every call to each of its hubs.  All hubs are called even when
// one fails; the first failure is returned and the others are logged.
type Fanout []Hub

func (f Fanout) each(ctx context.Context, op string, fn func(h Hub) error) error {
	var first error

	for i, h := range f {
		err := fn(h)
		if err == nil {
			continue
		}

		if first == nil {
			first = errors.Wrapf(err, "%s via hub %d", op, i)
		} else {
			logging.Logger(ctx).WithError(err).Warnf("%s via hub %d failed", op, i)
		}
	}

	return first
}

func (f Fanout) AddNode(ctx context.Context, info NodeInfo) error {
	return f.each(ctx, "add node", func(h Hub) error {
		return h.AddNode(ctx, info)
	})
}

func (f Fanout) SetDriver(ctx context.Context, addr address.Address, driver string, value float64, uom nodes.UOM) error {
	return f.each(ctx, "set driver", func(h Hub) error {
		return h.SetDriver(ctx, addr, driver, value, uom)
	})
}

func (f Fanout) ReportCommand(ctx context.Context, addr address.Address, command string) error {
	return f.each(ctx, "report command", func(h Hub) error {
		return h.ReportCommand(ctx, addr, command)
	})
}
