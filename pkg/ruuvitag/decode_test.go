package ruuvitag

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// https://ruu.vi/#AjwYAMFc
	testURLPayload   = "1E0201060303AAFE1616AAFE10EE037275752E76692F23416A7759414D4663CD"
	testRAWv1Payload = "02010611FF990403291A1ECE1EFC18F94202CA0B53"
	testRAWv2Payload = "0201061BFF99040512FC5394C37C0004FFFC040CAC364200CDCBB8334C884F"
)

func urlPayload(data []byte) string {
	b := []byte("\x03ruu.vi/#" + base64.RawURLEncoding.EncodeToString(data))
	return "0201060303AAFE1616AAFE10EE" + strings.ToUpper(hex.EncodeToString(b))
}

func TestDecode_URL(t *testing.T) {
	t.Parallel()

	m, err := Decode(testURLPayload)
	require.NoError(t, err)
	assert.Equal(t, 2, m.DataFormat)
	require.NotNil(t, m.Temperature)
	require.NotNil(t, m.Humidity)
	require.NotNil(t, m.Pressure)
	assert.Equal(t, 24.0, *m.Temperature)
	assert.Equal(t, 30.0, *m.Humidity)
	assert.Equal(t, 995.0, *m.Pressure)
	require.NotNil(t, m.DewPoint)
	assert.InDelta(t, 5.35, *m.DewPoint, 0.01)
	assert.Nil(t, m.BatteryVoltage)
	assert.Nil(t, m.AccelerationX)
	assert.Nil(t, m.Addr)
}

func TestDecode_URLFormat4(t *testing.T) {
	t.Parallel()

	b := []byte("\x03ruu.vi/#" + base64.RawURLEncoding.EncodeToString([]byte{0x04, 0x58, 0x96, 0x32, 0xC3, 0x50}) + "J")
	m, err := Decode(hex.EncodeToString(b))
	require.NoError(t, err)
	assert.Equal(t, 4, m.DataFormat)
	assert.Equal(t, -22.5, *m.Temperature)
	assert.Equal(t, 44.0, *m.Humidity)
	assert.Equal(t, 1000.0, *m.Pressure)
}

func TestDecode_RAWv1(t *testing.T) {
	t.Parallel()

	m, err := Decode(testRAWv1Payload)
	require.NoError(t, err)
	assert.Equal(t, 3, m.DataFormat)
	assert.InDelta(t, 26.3, *m.Temperature, 0.0001)
	assert.InDelta(t, 20.5, *m.Humidity, 0.0001)
	assert.InDelta(t, 1027.66, *m.Pressure, 0.0001)
	assert.Equal(t, -1000, *m.AccelerationX)
	assert.Equal(t, -1726, *m.AccelerationY)
	assert.Equal(t, 714, *m.AccelerationZ)
	assert.InDelta(t, 2.899, *m.BatteryVoltage, 0.0001)
	assert.Nil(t, m.TxPower)
	assert.Nil(t, m.MovementCounter)
}

func TestDecode_RAWv2(t *testing.T) {
	t.Parallel()

	m, err := Decode(testRAWv2Payload)
	require.NoError(t, err)
	assert.Equal(t, 5, m.DataFormat)
	assert.InDelta(t, 24.3, *m.Temperature, 0.0001)
	assert.InDelta(t, 53.49, *m.Humidity, 0.0001)
	assert.InDelta(t, 1000.44, *m.Pressure, 0.0001)
	assert.Equal(t, 4, *m.AccelerationX)
	assert.Equal(t, -4, *m.AccelerationY)
	assert.Equal(t, 1036, *m.AccelerationZ)
	assert.InDelta(t, 2.977, *m.BatteryVoltage, 0.0001)
	assert.Equal(t, 4, *m.TxPower)
	assert.Equal(t, 66, *m.MovementCounter)
	assert.Equal(t, 205, *m.MeasurementNumber)
	assert.Equal(t, "CB:B8:33:4C:88:4F", *m.Addr)
}

func TestDecode_RAWv2NotAvailable(t *testing.T) {
	t.Parallel()

	m, err := Decode("0201061BFF9904058000FFFFFFFF800080008000FFFFFFFFFFFFFFFFFFFFFF")
	require.NoError(t, err)
	assert.Equal(t, 5, m.DataFormat)
	assert.Nil(t, m.Temperature)
	assert.Nil(t, m.Humidity)
	assert.Nil(t, m.Pressure)
	assert.Nil(t, m.AccelerationX)
	assert.Nil(t, m.AccelerationY)
	assert.Nil(t, m.AccelerationZ)
	assert.Nil(t, m.BatteryVoltage)
	assert.Nil(t, m.TxPower)
	assert.Nil(t, m.MovementCounter)
	assert.Nil(t, m.MeasurementNumber)
	assert.Nil(t, m.Addr)
	assert.Nil(t, m.DewPoint)
}

func TestDecode_Deterministic(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{testURLPayload, testRAWv1Payload, testRAWv2Payload} {
		a, err := Decode(payload)
		require.NoError(t, err)
		b, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{"not hex", "not_valid", ErrMalformedPayload},
		{"odd length", "0201061", ErrMalformedPayload},
		{"other device", "some other device", ErrMalformedPayload},
		{"empty", "", ErrMalformedPayload},
		{"no ruuvitag data", "0201060303AAFE", ErrUnsupportedFormat},
		{"unknown manufacturer format", "0201061BFF990406", ErrUnsupportedFormat},
		{"unknown URL format", urlPayload([]byte{0x07, 0x3C, 0x18, 0x00, 0xC1, 0x5C}), ErrUnsupportedFormat},
		{"missing marker", "02010603FF9904", ErrMalformedPayload},
		{"truncated RAWv2", "0201061BFF99040512FC5394C37C", ErrMalformedPayload},
		{"truncated URL", hex.EncodeToString([]byte("\x03ruu.vi/#AjwY")), ErrMalformedPayload},
		{"URL humidity over 100 %", urlPayload([]byte{0x02, 0xFA, 0x18, 0x00, 0xC1, 0x5C}), ErrOutOfRange},
		{"URL temperature fraction", urlPayload([]byte{0x02, 0x3C, 0x18, 0x64, 0xC1, 0x5C}), ErrOutOfRange},
		{"RAWv1 humidity over 100 %", "02010611FF990403CA1A1ECE1EFC18F94202CA0B53", ErrOutOfRange},
		{"RAWv2 humidity over 100 %", "0201061BFF99040512FC9C41C37C0004FFFC040CAC364200CDCBB8334C884F", ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := Decode(tt.payload)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, m.IsZero())
		})
	}
}

func TestTryDecode(t *testing.T) {
	t.Parallel()

	m, ok := TryDecode("not_valid")
	assert.False(t, ok)
	assert.True(t, m.IsZero())
	m, ok = TryDecode(testURLPayload)
	assert.True(t, ok)
	assert.Equal(t, 24.0, *m.Temperature)
}

func TestMeasurement_Values(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Measurement{}.Values())

	m, err := Decode(testRAWv2Payload)
	require.NoError(t, err)
	v := m.Values()
	assert.Equal(t, 5, v["data_format"])
	assert.InDelta(t, 24.3, v["temperature"], 0.0001)
	assert.Equal(t, 2977, v["battery"])
	assert.InDelta(t, 1.036, v["acceleration_z"], 0.0001)
	assert.Equal(t, 205, v["measurement_sequence_number"])
	assert.Equal(t, "CB:B8:33:4C:88:4F", v["mac"])
	assert.NotContains(t, v, "time")

	m, err = Decode(testURLPayload)
	require.NoError(t, err)
	v = m.Values()
	assert.NotContains(t, v, "battery")
	assert.NotContains(t, v, "acceleration_x")
	assert.Equal(t, 995.0, v["pressure"])
}
