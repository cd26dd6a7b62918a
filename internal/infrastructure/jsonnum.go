package infrastructure

import (
	"fmt"
	"strconv"
	"strings"
)

// flexFloat accepts a JSON number or a numeric string. Empty strings and "-" read as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" || s == "-" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

func (f flexFloat) Float() float64 { return float64(f) }

// flexInt is the integer counterpart of flexFloat. Fractional input is truncated.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*i = flexInt(f)
	return nil
}

func (i flexInt) Int() int64 { return int64(i) }

// optFloat converts a nullable lenient number to the domain representation.
func optFloat(f *flexFloat) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// flexID accepts identifiers sent either as JSON strings or as numbers.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	*id = flexID(strings.Trim(s, `"`))
	return nil
}

func (id flexID) String() string { return string(id) }
