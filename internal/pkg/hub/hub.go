// Package hub is the bridge's view of the home automation hub: the external
// device registry that holds nodes and their driver values, receives
// heartbeats and issues user commands.
package hub

import (
	"context"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

// Heartbeat commands, alternated on every long poll
const (
	CommandOn  = "DON"
	CommandOff = "DOF"
)

// NodeInfo describes a node to create on the hub
type NodeInfo struct {
	Address address.Address `json:"address"`
	Parent  address.Address `json:"parent"`
	Name    string          `json:"name"`
	NodeDef string          `json:"nodedef"`
	Drivers []nodes.SlotDef `json:"drivers"`
}

// InfoFor builds the NodeInfo of a registry record
func InfoFor(rec *nodes.Record) NodeInfo {
	return NodeInfo{
		Address: rec.Address(),
		Parent:  rec.Parent(),
		Name:    rec.Name(),
		NodeDef: rec.Kind().NodeDefID(),
		Drivers: rec.Kind().Slots(),
	}
}

type Hub interface {
	// AddNode creates the node, or refreshes its description if it exists
	AddNode(ctx context.Context, info NodeInfo) error

	// SetDriver reports the value of one driver of a node
	SetDriver(ctx context.Context, addr address.Address, driver string, value float64, uom nodes.UOM) error

	// ReportCommand emits a discrete signal from a node, eg. the heartbeat
	ReportCommand(ctx context.Context, addr address.Address, command string) error
}

// CommandHandler receives commands issued to a node by hub users.  value is
// empty for commands without a parameter.
type CommandHandler func(ctx context.Context, addr address.Address, command, value string) error
