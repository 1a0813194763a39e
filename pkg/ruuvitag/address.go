package ruuvitag

import (
	"fmt"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}((:[0-9A-Fa-f]{2}){5}|(-[0-9A-Fa-f]{2}){5})$`)

// Address is a Bluetooth hardware address in canonical form, e.g. AA:2C:6A:1E:59:3D.
type Address string

// ParseAddress validates s and returns it in canonical uppercase, colon separated form.
// Both ':' and '-' are accepted as separators as long as they are used consistently.
func ParseAddress(s string) (Address, error) {
	if !addressPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(strings.ToUpper(strings.ReplaceAll(s, "-", ":"))), nil
}

// MustParseAddress is like ParseAddress but panics on a malformed address.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return string(a)
}
