package ruuvitag

import (
	"math"

	"github.com/niktheblak/ruuvitag-common/pkg/sensor"
)

// Measurement is one decoded RuuviTag broadcast. Fields that the matched data
// format does not carry are left nil.
type Measurement struct {
	sensor.Fields
	DataFormat int
}

// IsZero reports whether m is the empty state of a never updated sensor.
func (m Measurement) IsZero() bool {
	return m.DataFormat == 0
}

// Values returns the measured quantities keyed by their canonical names.
// Battery is reported in millivolts and acceleration in g.
func (m Measurement) Values() map[string]any {
	v := make(map[string]any)
	if m.IsZero() {
		return v
	}
	v["data_format"] = m.DataFormat
	if !m.Timestamp.IsZero() {
		v["time"] = m.Timestamp
	}
	if m.Addr != nil {
		v["mac"] = *m.Addr
	}
	if m.Temperature != nil {
		v["temperature"] = *m.Temperature
	}
	if m.Humidity != nil {
		v["humidity"] = *m.Humidity
	}
	if m.Pressure != nil {
		v["pressure"] = *m.Pressure
	}
	if m.DewPoint != nil {
		v["dew_point"] = *m.DewPoint
	}
	if m.BatteryVoltage != nil {
		v["battery"] = int(math.Round(*m.BatteryVoltage * 1000))
	}
	if m.TxPower != nil {
		v["tx_power"] = *m.TxPower
	}
	if m.AccelerationX != nil {
		v["acceleration_x"] = float64(*m.AccelerationX) / 1000
	}
	if m.AccelerationY != nil {
		v["acceleration_y"] = float64(*m.AccelerationY) / 1000
	}
	if m.AccelerationZ != nil {
		v["acceleration_z"] = float64(*m.AccelerationZ) / 1000
	}
	if m.MovementCounter != nil {
		v["movement_counter"] = *m.MovementCounter
	}
	if m.MeasurementNumber != nil {
		v["measurement_sequence_number"] = *m.MeasurementNumber
	}
	return v
}

// dewPoint uses the Magnus approximation over water.
func dewPoint(temperature, humidity float64) float64 {
	const (
		a = 17.62
		b = 243.12
	)
	gamma := math.Log(humidity/100) + a*temperature/(b+temperature)
	return b * gamma / (a - gamma)
}

func float64Pointer(v float64) *float64 {
	return &v
}

func intPointer(v int) *int {
	return &v
}

func stringPointer(v string) *string {
	return &v
}
