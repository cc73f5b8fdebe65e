// Package dates converts timestamps between the source and target wire
// formats. The source emits ISO 8601 with or without milliseconds and with a
// numeric zone offset; the target expects a zone-less local timestamp.
package dates

import (
	"fmt"
	"time"
)

// TargetFormat is the zone-less layout the target API accepts.
const TargetFormat = "2006-01-02 15:04:05"

var sourceLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// localLayouts are the zone-less forms some source installs emit; they are
// interpreted in the converter's location.
var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	TargetFormat,
}

// Converter renders source timestamps in the target's wire format, in a
// fixed location. The zero Converter renders in UTC.
type Converter struct {
	loc *time.Location
}

// NewConverter builds a Converter for the named IANA zone. An empty name
// selects UTC.
func NewConverter(zone string) (*Converter, error) {
	if zone == "" {
		return &Converter{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &Converter{loc: loc}, nil
}

// Location returns the converter's rendering location.
func (c *Converter) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Parse decodes a source timestamp. Zone-less input is interpreted in the
// converter's location.
func (c *Converter) Parse(s string) (time.Time, error) {
	for _, layout := range sourceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Format renders a time in the target wire format in the converter's
// location.
func (c *Converter) Format(t time.Time) string {
	return t.In(c.Location()).Format(TargetFormat)
}

// Convert parses a source timestamp and renders it for the target. Empty
// input stays empty and is not an error.
func (c *Converter) Convert(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	t, err := c.Parse(s)
	if err != nil {
		return "", err
	}
	return c.Format(t), nil
}
