// Package geo pulls latitude/longitude pairs out of pasted map links.
package geo

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Coordinates is an extracted pair. LatText and LonText hold the digits exactly as matched.
type Coordinates struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	LatText string  `json:"-"`
	LonText string  `json:"-"`
}

// Patterns in priority order. Every number needs a fractional part.
var patterns = []*regexp.Regexp{
	// @lat,lon,zoom view state
	regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+),`),
	// ?q=lat,lon or &ll=lat,lon
	regexp.MustCompile(`[?&](?:q|ll)=(-?\d+\.\d+),(-?\d+\.\d+)`),
	// !3d<lat>!4d<lon> in place links
	regexp.MustCompile(`!3d(-?\d+\.\d+)!4d(-?\d+\.\d+)`),
	// any lat,lon pair
	regexp.MustCompile(`(-?\d+\.\d+)\s*,\s*(-?\d+\.\d+)`),
}

// ExtractCoordinates returns the first pair found in text, trying each pattern in order.
// Input is percent-decoded first; text that fails to decode, or decodes to
// invalid UTF-8, yields no match.
func ExtractCoordinates(text string) (Coordinates, bool) {
	decoded, err := url.PathUnescape(strings.TrimSpace(text))
	if err != nil || !utf8.ValidString(decoded) {
		return Coordinates{}, false
	}
	for _, re := range patterns {
		m := re.FindStringSubmatch(decoded)
		if m == nil {
			continue
		}
		lat, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		return Coordinates{Lat: lat, Lon: lon, LatText: m[1], LonText: m[2]}, true
	}
	return Coordinates{}, false
}
