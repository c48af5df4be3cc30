package drivers

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	attrInactive    = "inactive"
	attrPercentOpen = "percent-open"

	// current-reading attributes
	attrVoltage      = "system-voltage"
	attrDuctPressure = "duct-pressure"
	attrDuctTemp     = "duct-temperature-c"
	attrRSSI         = "rssi"
)

type ventDriver struct{}

func (ventDriver) Kind() nodes.Kind {
	return nodes.KindVent
}

func (ventDriver) Live() bool {
	return true
}

func (ventDriver) Refresh(ctx context.Context, api flairapi.Client, rec *nodes.Record) (Values, error) {
	res := rec.Resource()

	v := Values{
		nodes.DriverActive: isTrue(res, attrInactive),
	}
	setFloat(v, nodes.DriverOpen, res, attrPercentOpen)

	reading, err := currentReading(ctx, api, rec)
	if reading != nil {
		setFloat(v, nodes.DriverVoltage, reading, attrVoltage)
		setFloat(v, nodes.DriverDuctPressure, reading, attrDuctPressure)
		setFloat(v, nodes.DriverSignal, reading, attrRSSI)

		if c, ok := reading.Float(attrDuctTemp); ok {
			v[nodes.DriverDuctTemp] = round1(c)
			v[nodes.DriverDuctTempF] = CelsiusToFahrenheit(c)
		}
	}

	return v, err
}

func (ventDriver) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"SET_OPEN":   setVentOpen,
		CommandQuery: queryCommand,
	}
}

func setVentOpen(ctx context.Context, e *Engine, rec *nodes.Record, value string) error {
	f, err := parseFloat(value)
	if err != nil {
		return err
	}

	percent := int(math.Round(f))
	if percent < 0 || percent > 100 {
		return errors.Wrapf(ErrInvalidValue, "percent open %s out of range 0-100", value)
	}

	update := map[string]interface{}{attrPercentOpen: percent}

	return e.writeThenRead(ctx, rec, update, func(res *flairapi.Resource) Values {
		v := Values{}
		setFloat(v, nodes.DriverOpen, res, attrPercentOpen)
		return v
	})
}

// currentReading fetches the to-one current-reading relation of a device.
// A nil reading means there is nothing to report.
func currentReading(ctx context.Context, api flairapi.Client, rec *nodes.Record) (*flairapi.Resource, error) {
	readings, err := api.Related(ctx, rec.Resource(), flairapi.RelCurrentReading)
	if err != nil {
		logging.NodeLogger(ctx, rec.Address().String(), rec.Kind()).
			WithError(err).Warn("Cannot fetch current reading")
		return nil, errors.Wrap(err, "fetching current reading")
	}

	if len(readings) == 0 {
		return nil, nil
	}

	return readings[0], nil
}

// setFloat copies a numeric attribute into v when it is not null
func setFloat(v Values, driver string, res *flairapi.Resource, attr string) {
	if f, ok := res.Float(attr); ok {
		v[driver] = f
	}
}
