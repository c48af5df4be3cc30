package drivers

import (
	"context"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

// Enumerations reported as indexes.  The order is part of the hub's node
// profile and must not change.
var (
	StructureModes = []string{"manual", "auto"}

	StructureAwayModes = []string{
		"Manual",
		"Third Party Home Away",
		"Flair Autohome Autoaway",
	}

	StructureSetPointModes = []string{
		"Home Evenness For Active Rooms Flair Setpoint",
		"Home Evenness For Active Rooms Follow Third Party",
	}
)

const (
	attrStructureActive   = "is-active"
	attrStructureSetPoint = "set-point-temperature-c"
	attrStructureHome     = "home"
	attrStructureMode     = "mode"
	attrStructureAway     = "home-away-mode"
	attrStructureSPM      = "set-point-mode"
)

type structureDriver struct{}

func (structureDriver) Kind() nodes.Kind {
	return nodes.KindStructure
}

func (structureDriver) Live() bool {
	return false
}

func (structureDriver) Refresh(ctx context.Context, api flairapi.Client, rec *nodes.Record) (Values, error) {
	log := logging.NodeLogger(ctx, rec.Address().String(), rec.Kind())
	res := rec.Resource()

	v := Values{
		nodes.DriverActive: isTrue(res, attrStructureActive),
		nodes.DriverHome:   isTrue(res, attrStructureHome),
	}

	if c, ok := res.Float(attrStructureSetPoint); ok {
		v[nodes.DriverTemp] = round1(c)
		v[nodes.DriverTempF] = CelsiusToFahrenheit(c)
	} else {
		log.Debugf("No %s, skipping", attrStructureSetPoint)
	}

	enums := []struct {
		driver string
		attr   string
		labels []string
	}{
		{nodes.DriverMode, attrStructureMode, StructureModes},
		{nodes.DriverAway, attrStructureAway, StructureAwayModes},
		{nodes.DriverEvenness, attrStructureSPM, StructureSetPointModes},
	}

	for _, e := range enums {
		if idx, ok := enumIndex(res, e.attr, e.labels); ok {
			v[e.driver] = idx
		} else {
			label, _ := res.Text(e.attr)
			log.Warnf("Unknown %s %q, skipping", e.attr, label)
		}
	}

	return v, nil
}

func (structureDriver) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"SET_MODE":    setEnumCommand(attrStructureMode, StructureModes, nodes.DriverMode),
		"SET_AWAY":    setEnumCommand(attrStructureAway, StructureAwayModes, nodes.DriverAway),
		"SET_EVENESS": setEnumCommand(attrStructureSPM, StructureSetPointModes, nodes.DriverEvenness),
		CommandQuery:  queryCommand,
	}
}

// setEnumCommand writes labels[value] to attr, then reports the index of
// whatever label the server stored
func setEnumCommand(attr string, labels []string, driver string) CommandFunc {
	return func(ctx context.Context, e *Engine, rec *nodes.Record, value string) error {
		i, err := parseIndex(value, len(labels))
		if err != nil {
			return err
		}

		update := map[string]interface{}{attr: labels[i]}

		return e.writeThenRead(ctx, rec, update, func(res *flairapi.Resource) Values {
			if idx, ok := enumIndex(res, attr, labels); ok {
				return Values{driver: idx}
			}
			return nil
		})
	}
}
