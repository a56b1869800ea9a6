package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coordinates is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// PointOfInterest is one persisted record of a category.
type PointOfInterest struct {
	ID         string   `json:"id"`
	Category   Category `json:"category"`
	RawAddress string   `json:"raw_address,omitempty"`

	// Nil when the record has no resolved location.
	*Coordinates

	SourceRow  int       `json:"source_row,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// HasCoordinates reports whether the record carries a resolved location.
func (p PointOfInterest) HasCoordinates() bool {
	return p.Coordinates != nil
}

// ParseCoordinates converts latitude and longitude cells into Coordinates.
// A blank cell yields ErrRowIncomplete; unparseable or out-of-range values
// yield ErrRowMalformed.
func ParseCoordinates(latText, lngText string) (Coordinates, error) {
	latText = strings.TrimSpace(latText)
	lngText = strings.TrimSpace(lngText)
	if latText == "" || lngText == "" {
		return Coordinates{}, fmt.Errorf("%w: latitude or longitude is empty", ErrRowIncomplete)
	}

	lat, err := parseDegrees(latText, 90)
	if err != nil {
		return Coordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := parseDegrees(lngText, 180)
	if err != nil {
		return Coordinates{}, fmt.Errorf("longitude: %w", err)
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}

// parseDegrees parses a decimal-degree value bounded by ±limit.
func parseDegrees(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrRowMalformed, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		return 0, fmt.Errorf("%w: %q out of range", ErrRowMalformed, s)
	}
	return v, nil
}
