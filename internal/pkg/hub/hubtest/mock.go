// Package hubtest provides a testify mock of hub.Hub
package hubtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

type MockHub struct {
	mock.Mock
}

// NewPermissive returns a mock that accepts any call and succeeds
func NewPermissive() *MockHub {
	m := &MockHub{}
	m.On("AddNode", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SetDriver", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("ReportCommand", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockHub) AddNode(ctx context.Context, info hub.NodeInfo) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

func (m *MockHub) SetDriver(ctx context.Context, addr address.Address, driver string, value float64, uom nodes.UOM) error {
	args := m.Called(ctx, addr, driver, value, uom)
	return args.Error(0)
}

func (m *MockHub) ReportCommand(ctx context.Context, addr address.Address, command string) error {
	args := m.Called(ctx, addr, command)
	return args.Error(0)
}

// DriverCalls returns the values reported for one driver of addr, in order
func (m *MockHub) DriverCalls(addr address.Address, driver string) []float64 {
	var out []float64
	for _, c := range m.Calls {
		if c.Method != "SetDriver" {
			continue
		}
		if c.Arguments.Get(1).(address.Address) == addr && c.Arguments.String(2) == driver {
			out = append(out, c.Arguments.Get(3).(float64))
		}
	}
	return out
}

// Commands returns the commands reported for addr, in order
func (m *MockHub) Commands(addr address.Address) []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "ReportCommand" && c.Arguments.Get(1).(address.Address) == addr {
			out = append(out, c.Arguments.String(2))
		}
	}
	return out
}

// Nodes returns the addresses passed to AddNode, in order
func (m *MockHub) Nodes() []address.Address {
	var out []address.Address
	for _, c := range m.Calls {
		if c.Method == "AddNode" {
			out = append(out, c.Arguments.Get(1).(hub.NodeInfo).Address)
		}
	}
	return out
}
