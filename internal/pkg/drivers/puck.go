package drivers

import (
	"context"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	attrPuckTemp     = "current-temperature-c"
	attrPuckHumidity = "current-humidity"
)

type puckDriver struct{}

func (puckDriver) Kind() nodes.Kind {
	return nodes.KindPuck
}

func (puckDriver) Live() bool {
	return true
}

func (puckDriver) Refresh(ctx context.Context, api flairapi.Client, rec *nodes.Record) (Values, error) {
	res := rec.Resource()

	v := Values{
		nodes.DriverActive: isTrue(res, attrInactive),
	}

	if c, ok := res.Float(attrPuckTemp); ok {
		v[nodes.DriverTemp] = round1(c)
		v[nodes.DriverTempF] = CelsiusToFahrenheit(c)
	}
	setFloat(v, nodes.DriverHumidity, res, attrPuckHumidity)

	reading, err := currentReading(ctx, api, rec)
	if reading != nil {
		setFloat(v, nodes.DriverSignal, reading, attrRSSI)
		setFloat(v, nodes.DriverVoltage, reading, attrVoltage)
	}

	return v, err
}

func (puckDriver) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		CommandQuery: queryCommand,
	}
}
