// Package geo provides coordinate decoding and great-circle distance utilities.
package geo

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Position is a geographic position in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether p is the neutral position returned for unparseable input.
func (p Position) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

// dmsToken matches one D°M'S"H group. The degree sign may also be written as the masculine
// ordinal (º), which is common in hand-typed aerodrome lists.
var dmsToken = regexp.MustCompile(`(\d{1,3})\s*[°º]\s*(\d{1,2})\s*'\s*(\d{1,2}(?:\.\d+)?)\s*"\s*([NSEWnsew])`)

// ParsePosition decodes a `D°M'S"H D°M'S"H` string (latitude first, then longitude).
//
// Malformed input yields the zero Position rather than an error. No range validation is done;
// callers decide whether an all-zero result is plausible for their operating area.
func ParsePosition(s string) Position {
	m := dmsToken.FindAllStringSubmatch(s, -1)
	if len(m) != 2 {
		return Position{}
	}

	lat, latHemi, ok := parseDMS(m[0])
	if !ok || (latHemi != 'N' && latHemi != 'S') {
		return Position{}
	}
	lon, lonHemi, ok := parseDMS(m[1])
	if !ok || (lonHemi != 'E' && lonHemi != 'W') {
		return Position{}
	}

	return Position{Latitude: lat, Longitude: lon}
}

// parseDMS converts one regexp match into signed decimal degrees.
func parseDMS(m []string) (float64, byte, bool) {
	deg, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	min, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, 0, false
	}

	hemi := m[4][0]
	if hemi >= 'a' {
		hemi -= 'a' - 'A'
	}

	v := float64(deg) + float64(min)/60.0 + sec/3600.0
	if hemi == 'S' || hemi == 'W' {
		v = -v
	}
	return v, hemi, true
}

// FormatPosition serializes p back to `D°M'S"H D°M'S"H`, with seconds rounded to whole numbers.
func FormatPosition(p Position) string {
	return formatDMS(p.Latitude, 'N', 'S') + " " + formatDMS(p.Longitude, 'E', 'W')
}

func formatDMS(v float64, pos, neg byte) string {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}

	totalSec := int(math.Round(v * 3600))
	deg := totalSec / 3600
	min := (totalSec % 3600) / 60
	sec := totalSec % 60

	return fmt.Sprintf("%d°%02d'%02d\"%c", deg, min, sec, hemi)
}
