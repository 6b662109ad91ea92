package intent

import (
	"fmt"
	"regexp"
	"strconv"
)

// Callsign is a validated aircraft identifier: a three-letter ICAO airline
// designator followed by a flight number without leading zeros (e.g. AFR345).
// The empty Callsign means none was recovered.
type Callsign string

var callsignPattern = regexp.MustCompile(`^([A-Z]{3})([0-9]{1,4})$`)

// NewCallsign builds a callsign from a designator and a flight number.
// Leading zeros of the number are dropped.
func NewCallsign(designator string, number int) (Callsign, error) {
	if number < 0 || number > 9999 {
		return "", fmt.Errorf("flight number out of range: %d", number)
	}
	return ParseCallsign(designator + strconv.Itoa(number))
}

// ParseCallsign validates a compact callsign string
func ParseCallsign(s string) (Callsign, error) {
	m := callsignPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("invalid callsign: %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", fmt.Errorf("invalid flight number in %q: %w", s, err)
	}
	return Callsign(m[1] + strconv.Itoa(n)), nil
}

// IsZero reports whether no callsign is set
func (c Callsign) IsZero() bool { return c == "" }

func (c Callsign) String() string { return string(c) }

// MarshalJSON encodes the empty callsign as null
func (c Callsign) MarshalJSON() ([]byte, error) {
	if c == "" {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(string(c))), nil
}

// UnmarshalJSON accepts null or a callsign string
func (c *Callsign) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("failed to decode callsign: %w", err)
	}
	if s == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseCallsign(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
