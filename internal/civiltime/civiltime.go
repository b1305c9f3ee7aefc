// Package civiltime is the single path by which user-entered civil dates and
// clock times touch absolute instants. Every other package operates on
// time.Time values produced here.
package civiltime

import (
	"fmt"
	"time"
)

// kst is the default anchor zone. Korea Standard Time has no daylight-saving
// transitions, so a fixed offset is exact and keeps conversions reproducible
// without host tzdata.
var kst = time.FixedZone("KST", 9*60*60)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// FormatError reports a malformed civil date or time string. It is never
// swallowed; a bad input must not silently become a wrong instant.
type FormatError struct {
	Field string
	Value string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("civiltime: malformed %s %q", e.Field, e.Value)
}

// Converter anchors civil time arithmetic to one fixed named timezone.
type Converter struct {
	location *time.Location
}

// NewConverter constructs a Converter for the given location. If loc is nil,
// KST is used.
func NewConverter(loc *time.Location) *Converter {
	if loc == nil {
		loc = kst
	}
	return &Converter{location: loc}
}

// Location returns the anchor zone of the converter.
func (c *Converter) Location() *time.Location {
	if c == nil || c.location == nil {
		return kst
	}
	return c.location
}

// ToAbsolute combines a civil date ("2006-01-02") and clock time ("15:04:05")
// into an absolute instant in the anchor zone.
func (c *Converter) ToAbsolute(civilDate, civilTime string) (time.Time, error) {
	loc := c.Location()

	day, err := time.ParseInLocation(dateLayout, civilDate, loc)
	if err != nil {
		return time.Time{}, &FormatError{Field: "date", Value: civilDate}
	}

	clock, err := time.ParseInLocation(timeLayout, civilTime, loc)
	if err != nil {
		return time.Time{}, &FormatError{Field: "time", Value: civilTime}
	}

	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
}

// AddMinutes shifts an instant by the given number of minutes. Negative deltas
// move backwards.
func (c *Converter) AddMinutes(instant time.Time, delta int) time.Time {
	return instant.Add(time.Duration(delta) * time.Minute)
}

// Format renders an instant as a civil "2006-01-02 15:04:05" string in the
// anchor zone, suitable for reminder email bodies.
func (c *Converter) Format(instant time.Time) string {
	return instant.In(c.Location()).Format(dateLayout + " " + timeLayout)
}

// FormatClock renders only the clock portion of an instant in the anchor zone.
func (c *Converter) FormatClock(instant time.Time) string {
	return instant.In(c.Location()).Format(timeLayout)
}
