package drivers

import (
	"context"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	attrRoomActive   = "active"
	attrRoomTemp     = "current-temperature-c"
	attrRoomHumidity = "current-humidity"
	attrRoomSetPoint = "set-point-c"
)

type roomDriver struct{}

func (roomDriver) Kind() nodes.Kind {
	return nodes.KindRoom
}

func (roomDriver) Live() bool {
	return false
}

// Rooms report null readings as 0
func (roomDriver) Refresh(ctx context.Context, api flairapi.Client, rec *nodes.Record) (Values, error) {
	res := rec.Resource()
	temp := round1(floatOrZero(res, attrRoomTemp))

	return Values{
		nodes.DriverActive:   1 - isTrue(res, attrRoomActive),
		nodes.DriverTemp:     temp,
		nodes.DriverTempF:    CelsiusToFahrenheit(temp),
		nodes.DriverHumidity: floatOrZero(res, attrRoomHumidity),
		nodes.DriverSetpoint: roomSetPoint(res),
	}, nil
}

func roomSetPoint(res *flairapi.Resource) float64 {
	return round1(floatOrZero(res, attrRoomSetPoint))
}

func (roomDriver) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"SET_TEMP":   setRoomTemp,
		CommandQuery: queryCommand,
	}
}

func setRoomTemp(ctx context.Context, e *Engine, rec *nodes.Record, value string) error {
	c, err := parseFloat(value)
	if err != nil {
		return err
	}

	update := map[string]interface{}{attrRoomSetPoint: c}

	return e.writeThenRead(ctx, rec, update, func(res *flairapi.Resource) Values {
		return Values{nodes.DriverSetpoint: roomSetPoint(res)}
	})
}
