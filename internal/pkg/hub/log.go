package hub

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

// Log is a hub that only writes what it is told to the log
type Log struct {
	Level logrus.Level
}

func NewLog() *Log {
	return &Log{Level: logrus.InfoLevel}
}

func (l *Log) AddNode(ctx context.Context, info NodeInfo) error {
	logging.Logger(ctx).WithFields(logrus.Fields{
		"address": info.Address,
		"parent":  info.Parent,
		"nodedef": info.NodeDef,
	}).Logf(l.Level, "Add node %s", info.Name)

	return nil
}

func (l *Log) SetDriver(ctx context.Context, addr address.Address, driver string, value float64, uom nodes.UOM) error {
	logging.Logger(ctx).WithFields(logrus.Fields{
		"address": addr,
		"driver":  driver,
		"uom":     uom,
	}).Logf(l.Level, "Set driver to %v", value)

	return nil
}

func (l *Log) ReportCommand(ctx context.Context, addr address.Address, command string) error {
	logging.Logger(ctx).WithField("address", addr).Logf(l.Level, "Report command %s", command)

	return nil
}
