package nodes

// UOM is a hub unit-of-measure code
type UOM int

const (
	UOMBoolean    UOM = 2
	UOMCelsius    UOM = 4
	UOMFahrenheit UOM = 17
	UOMIndex      UOM = 25
	UOMPercent    UOM = 51
	UOMRaw        UOM = 56
	UOMVolt       UOM = 72
)

// Driver slot identifiers
const (
	DriverStatus       = "ST"
	DriverOpen         = "GV1"
	DriverActive       = "GV2"
	DriverHome         = "GV3"
	DriverMode         = "GV4"
	DriverAway         = "GV5"
	DriverEvenness     = "GV6"
	DriverTempF        = "GV7"
	DriverDuctPressure = "GV8"
	DriverDuctTemp     = "GV9"
	DriverDuctTempF    = "GV10"
	DriverSignal       = "GV11"
	DriverVoltage      = "CV"
	DriverTemp         = "CLITEMP"
	DriverHumidity     = "CLIHUM"
	DriverSetpoint     = "CLISPC"
)

// SlotDef declares one driver of a node definition
type SlotDef struct {
	Driver  string  `json:"driver"`
	Default float64 `json:"value"`
	UOM     UOM     `json:"uom"`

	// Force reports the slot on every refresh, even when unchanged
	Force bool `json:"-"`
}

var slotTables = map[Kind][]SlotDef{
	KindStructure: {
		{Driver: DriverActive, UOM: UOMBoolean, Force: true},
		{Driver: DriverTemp, UOM: UOMCelsius, Force: true},
		{Driver: DriverTempF, UOM: UOMFahrenheit, Force: true},
		{Driver: DriverHome, UOM: UOMBoolean, Force: true},
		{Driver: DriverMode, UOM: UOMIndex, Force: true},
		{Driver: DriverAway, UOM: UOMIndex, Force: true},
		{Driver: DriverEvenness, UOM: UOMIndex, Force: true},
	},
	KindRoom: {
		{Driver: DriverActive, UOM: UOMBoolean, Force: true},
		{Driver: DriverTemp, UOM: UOMCelsius, Force: true},
		{Driver: DriverTempF, UOM: UOMFahrenheit, Force: true},
		{Driver: DriverHumidity, UOM: UOMPercent, Force: true},
		{Driver: DriverSetpoint, UOM: UOMCelsius, Force: true},
	},
	KindVent: {
		{Driver: DriverActive, UOM: UOMBoolean, Force: true},
		{Driver: DriverOpen, UOM: UOMPercent, Force: true},
		{Driver: DriverVoltage, UOM: UOMVolt},
		{Driver: DriverDuctPressure, UOM: UOMRaw},
		{Driver: DriverDuctTemp, UOM: UOMCelsius},
		{Driver: DriverDuctTempF, UOM: UOMFahrenheit},
		{Driver: DriverSignal, UOM: UOMRaw},
	},
	KindPuck: {
		{Driver: DriverActive, UOM: UOMBoolean},
		{Driver: DriverTemp, UOM: UOMCelsius, Force: true},
		{Driver: DriverTempF, UOM: UOMFahrenheit, Force: true},
		{Driver: DriverHumidity, UOM: UOMPercent, Force: true},
		{Driver: DriverSignal, UOM: UOMRaw},
		{Driver: DriverVoltage, UOM: UOMVolt},
	},
}

// ControllerSlots are the drivers of the bridge's own controller node
var ControllerSlots = []SlotDef{
	{Driver: DriverStatus, UOM: UOMBoolean},
}

// Slots returns the static driver list of the kind, in report order
func (k Kind) Slots() []SlotDef {
	return slotTables[k]
}

// Slot looks up one driver of the kind
func (k Kind) Slot(driver string) (SlotDef, bool) {
	for _, def := range slotTables[k] {
		if def.Driver == driver {
			return def, true
		}
	}

	return SlotDef{}, false
}
