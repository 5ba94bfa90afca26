package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a price in minor currency units (kopecks, cents).
type Amount int64

// ParseAmount parses "490", "490.5" or "490.50" into minor units. Signs, exponents and
// amounts beyond the int64 range are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("amount %q: at most two decimal places", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
	} else {
		frac = "00"
	}
	if !digits(whole) {
		return 0, fmt.Errorf("amount %q: invalid whole part", s)
	}
	if !digits(frac) {
		return 0, fmt.Errorf("amount %q: invalid fractional part", s)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("amount %q: out of range", s)
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	return Amount(units*100 + cents), nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the amount with two decimals, the form payment processors expect.
func (a Amount) String() string {
	return fmt.Sprintf("%d.%02d", int64(a)/100, int64(a)%100)
}

// Whole returns the amount rounded down to major units, for display.
func (a Amount) Whole() int64 { return int64(a) / 100 }

// UnmarshalJSON accepts either a JSON number or a string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON renders the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}
