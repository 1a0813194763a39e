package ruuvitag

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// pressureOffset is added to every transmitted pressure value (Pa).
const pressureOffset = 50000

var (
	// AD type 0xFF followed by the Ruuvi Innovations company identifier 0x0499 (little endian)
	manufacturerPrefix = []byte{0xFF, 0x99, 0x04}
	// Eddystone-URL body of the weather station firmware
	urlPrefix = []byte("ruu.vi/#")
)

// format describes one on-wire data format. Formats are selected by the marker
// byte at the start of the RuuviTag data block.
type format struct {
	marker byte
	// length of the data block including the marker byte
	length int
	decode func(b []byte) (Measurement, error)
}

var manufacturerFormats = map[byte]format{
	3: {marker: 3, length: 14, decode: decodeRAWv1},
	5: {marker: 5, length: 24, decode: decodeRAWv2},
}

var urlFormats = map[byte]format{
	2: {marker: 2, length: 6, decode: decodeURL},
	// format 4 appends an identifier character to the URL which is not part of the measurement
	4: {marker: 4, length: 6, decode: decodeURL},
}

// Decode decodes a hexadecimal broadcast payload into a Measurement.
// The payload may either carry RuuviTag manufacturer specific data (formats 3 and 5)
// or an Eddystone-URL pointing to ruu.vi (formats 2 and 4).
func Decode(raw string) (Measurement, error) {
	if raw == "" {
		return Measurement{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if i := bytes.Index(b, manufacturerPrefix); i >= 0 {
		return decodeWith(manufacturerFormats, b[i+len(manufacturerPrefix):])
	}
	if i := bytes.Index(b, urlPrefix); i >= 0 {
		data, err := urlData(b[i+len(urlPrefix):])
		if err != nil {
			return Measurement{}, err
		}
		return decodeWith(urlFormats, data)
	}
	return Measurement{}, fmt.Errorf("%w: no RuuviTag data in payload", ErrUnsupportedFormat)
}

// TryDecode is like Decode but reports failure with ok == false instead of an error.
func TryDecode(raw string) (Measurement, bool) {
	m, err := Decode(raw)
	if err != nil {
		return Measurement{}, false
	}
	return m, true
}

func decodeWith(formats map[byte]format, b []byte) (Measurement, error) {
	if len(b) == 0 {
		return Measurement{}, fmt.Errorf("%w: missing data format marker", ErrMalformedPayload)
	}
	f, ok := formats[b[0]]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, b[0])
	}
	if len(b) < f.length {
		return Measurement{}, fmt.Errorf("%w: data format %d requires %d bytes, got %d", ErrMalformedPayload, f.marker, f.length, len(b))
	}
	m, err := f.decode(b[:f.length])
	if err != nil {
		return Measurement{}, err
	}
	m.DataFormat = int(f.marker)
	if m.Temperature != nil && m.Humidity != nil && *m.Humidity > 0 {
		m.DewPoint = float64Pointer(dewPoint(*m.Temperature, *m.Humidity))
	}
	return m, nil
}

// urlData extracts and decodes the base64 measurement that follows the ruu.vi/# prefix.
func urlData(b []byte) ([]byte, error) {
	n := 0
	for n < len(b) && isBase64(b[n]) {
		n++
	}
	// 8 base64 characters carry the 6 measurement bytes
	if n < 8 {
		return nil, fmt.Errorf("%w: URL data too short", ErrMalformedPayload)
	}
	r := strings.NewReplacer("+", "-", "/", "_")
	data, err := base64.RawURLEncoding.DecodeString(r.Replace(string(b[:8])))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return data, nil
}

func isBase64(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '+', c == '/':
		return true
	}
	return false
}

// decodeURL decodes data formats 2 and 4:
//
//	0    format
//	1    humidity, 0.5 %
//	2    temperature, whole degrees, MSB is the sign
//	3    temperature, hundredths of a degree
//	4-5  pressure, Pa - 50000
func decodeURL(b []byte) (Measurement, error) {
	humidity, err := halfPercent(b[1])
	if err != nil {
		return Measurement{}, err
	}
	temperature, err := signMagnitude(b[2], b[3])
	if err != nil {
		return Measurement{}, err
	}
	var m Measurement
	m.Humidity = float64Pointer(humidity)
	m.Temperature = float64Pointer(temperature)
	m.Pressure = float64Pointer(pressure(binary.BigEndian.Uint16(b[4:6])))
	return m, nil
}

// decodeRAWv1 decodes data format 3:
//
//	0      format
//	1      humidity, 0.5 %
//	2      temperature, whole degrees, MSB is the sign
//	3      temperature, hundredths of a degree
//	4-5    pressure, Pa - 50000
//	6-11   acceleration x, y, z, signed mG
//	12-13  battery voltage, mV
func decodeRAWv1(b []byte) (Measurement, error) {
	m, err := decodeURL(b[:6])
	if err != nil {
		return Measurement{}, err
	}
	m.AccelerationX = intPointer(int(int16(binary.BigEndian.Uint16(b[6:8]))))
	m.AccelerationY = intPointer(int(int16(binary.BigEndian.Uint16(b[8:10]))))
	m.AccelerationZ = intPointer(int(int16(binary.BigEndian.Uint16(b[10:12]))))
	m.BatteryVoltage = float64Pointer(float64(binary.BigEndian.Uint16(b[12:14])) / 1000)
	return m, nil
}

// decodeRAWv2 decodes data format 5:
//
//	0      format
//	1-2    temperature, signed, 0.005 degrees
//	3-4    humidity, 0.0025 %
//	5-6    pressure, Pa - 50000
//	7-12   acceleration x, y, z, signed mG
//	13-14  power info: 11 bits battery voltage above 1.6 V in mV, 5 bits tx power above -40 dBm in 2 dBm steps
//	15     movement counter
//	16-17  measurement sequence number
//	18-23  MAC address
//
// Fields carrying the format's "not available" value are left out.
func decodeRAWv2(b []byte) (Measurement, error) {
	var m Measurement
	if t := int16(binary.BigEndian.Uint16(b[1:3])); t != -0x8000 {
		m.Temperature = float64Pointer(float64(t) / 200)
	}
	if h := binary.BigEndian.Uint16(b[3:5]); h != 0xFFFF {
		humidity := float64(h) / 400
		if humidity > 100 {
			return Measurement{}, fmt.Errorf("%w: humidity %.4f %%", ErrOutOfRange, humidity)
		}
		m.Humidity = float64Pointer(humidity)
	}
	if p := binary.BigEndian.Uint16(b[5:7]); p != 0xFFFF {
		m.Pressure = float64Pointer(pressure(p))
	}
	m.AccelerationX = acceleration(b[7:9])
	m.AccelerationY = acceleration(b[9:11])
	m.AccelerationZ = acceleration(b[11:13])
	power := binary.BigEndian.Uint16(b[13:15])
	if battery := power >> 5; battery != 0x7FF {
		m.BatteryVoltage = float64Pointer(float64(int(battery)+1600) / 1000)
	}
	if tx := power & 0x1F; tx != 0x1F {
		m.TxPower = intPointer(int(tx)*2 - 40)
	}
	if b[15] != 0xFF {
		m.MovementCounter = intPointer(int(b[15]))
	}
	if seq := binary.BigEndian.Uint16(b[16:18]); seq != 0xFFFF {
		m.MeasurementNumber = intPointer(int(seq))
	}
	if mac := b[18:24]; !bytes.Equal(mac, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		m.Addr = stringPointer(formatMAC(mac))
	}
	return m, nil
}

func halfPercent(v byte) (float64, error) {
	humidity := float64(v) / 2
	if humidity > 100 {
		return 0, fmt.Errorf("%w: humidity %.1f %%", ErrOutOfRange, humidity)
	}
	return humidity, nil
}

func signMagnitude(whole, hundredths byte) (float64, error) {
	if hundredths > 99 {
		return 0, fmt.Errorf("%w: temperature fraction %d", ErrOutOfRange, hundredths)
	}
	t := float64(whole&0x7F) + float64(hundredths)/100
	if whole&0x80 != 0 {
		t = -t
	}
	return t, nil
}

// pressure converts a transmitted pressure value to hPa.
func pressure(v uint16) float64 {
	return float64(int(v)+pressureOffset) / 100
}

func acceleration(b []byte) *int {
	a := int16(binary.BigEndian.Uint16(b))
	if a == -0x8000 {
		return nil
	}
	return intPointer(int(a))
}

func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}
