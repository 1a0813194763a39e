package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

type metrics struct {
	temperature  *prometheus.GaugeVec
	humidity     *prometheus.GaugeVec
	pressure     *prometheus.GaugeVec
	dewPoint     *prometheus.GaugeVec
	battery      *prometheus.GaugeVec
	txPower      *prometheus.GaugeVec
	acceleration *prometheus.GaugeVec
	movement     *prometheus.GaugeVec
	omittedTotal *prometheus.CounterVec
}

func newGauge(name string, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ruuvitag",
			Name:      name,
			Help:      help,
		},
		append([]string{"mac"}, labels...),
	)
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		temperature:  newGauge("temperature_celsius", "Temperature (units: degrees Celsius)"),
		humidity:     newGauge("humidity_percent", "Relative humidity (units: %)"),
		pressure:     newGauge("pressure_hpa", "Atmospheric pressure (units: hPa)"),
		dewPoint:     newGauge("dew_point_celsius", "Dew point (units: degrees Celsius)"),
		battery:      newGauge("battery_volts", "Battery voltage (units: V)"),
		txPower:      newGauge("tx_power_dbm", "Transmit power (units: dBm)"),
		acceleration: newGauge("acceleration_g", "Acceleration (units: g)", "axis"),
		movement:     newGauge("movement_counter", "Movement counter"),
		omittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruuvitag",
				Name:      "omitted_total",
				Help:      "Broadcasts omitted from discovery results",
			},
			[]string{"mac"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.temperature,
		m.humidity,
		m.pressure,
		m.dewPoint,
		m.battery,
		m.txPower,
		m.acceleration,
		m.movement,
		m.omittedTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observe(addr ruuvitag.Address, d ruuvitag.Measurement) {
	mac := addr.String()
	setFloat(m.temperature, d.Temperature, mac)
	setFloat(m.humidity, d.Humidity, mac)
	setFloat(m.pressure, d.Pressure, mac)
	setFloat(m.dewPoint, d.DewPoint, mac)
	setFloat(m.battery, d.BatteryVoltage, mac)
	setInt(m.txPower, d.TxPower, 1, mac)
	setInt(m.acceleration, d.AccelerationX, 1000, mac, "x")
	setInt(m.acceleration, d.AccelerationY, 1000, mac, "y")
	setInt(m.acceleration, d.AccelerationZ, 1000, mac, "z")
	setInt(m.movement, d.MovementCounter, 1, mac)
}

func (m *metrics) omitted(addr ruuvitag.Address) {
	m.omittedTotal.WithLabelValues(addr.String()).Inc()
}

// fields absent from the data format are not exported
func setFloat(g *prometheus.GaugeVec, v *float64, labels ...string) {
	if v != nil {
		g.WithLabelValues(labels...).Set(*v)
	}
}

func setInt(g *prometheus.GaugeVec, v *int, scale float64, labels ...string) {
	if v != nil {
		g.WithLabelValues(labels...).Set(float64(*v) / scale)
	}
}
