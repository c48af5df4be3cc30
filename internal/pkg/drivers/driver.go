// Package drivers maps Flair resource attributes onto hub driver slots and
// carries out node commands against the Flair API.
package drivers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

// Command names shared by several kinds
const (
	CommandQuery     = "QUERY"
	CommandDiscovery = "DISCOVERY"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidValue   = errors.New("invalid command value")

	// ErrNotDiscovered is returned for commands to a node restored from the
	// address cache that discovery has not yet seen
	ErrNotDiscovered = errors.New("node has not been discovered yet")
)

// Values is the result of one refresh, keyed by driver
type Values map[string]float64

// CommandFunc carries out one node command.  value is the raw parameter as
// received from the hub.
type CommandFunc func(ctx context.Context, e *Engine, rec *nodes.Record, value string) error

type Driver interface {
	Kind() nodes.Kind

	// Refresh derives every slot it can from the record's resource.  Slots
	// whose source attribute is unusable are left out of the result.  The
	// error is a failed fetch the values were derived without.
	Refresh(ctx context.Context, api flairapi.Client, rec *nodes.Record) (Values, error)

	// Live reports whether Refresh reads from the API, rather than only from
	// the resource as discovery last fetched it
	Live() bool

	Commands() map[string]CommandFunc
}

// For returns the driver of a kind
func For(kind nodes.Kind) (Driver, error) {
	switch kind {
	case nodes.KindStructure:
		return structureDriver{}, nil
	case nodes.KindRoom:
		return roomDriver{}, nil
	case nodes.KindPuck:
		return puckDriver{}, nil
	case nodes.KindVent:
		return ventDriver{}, nil
	}

	return nil, errors.Errorf("no driver for %s", kind)
}

func queryCommand(ctx context.Context, e *Engine, rec *nodes.Record, value string) error {
	e.Query(ctx, rec)
	return nil
}
