package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/kjstillabower/location-forecast-service/internal/models"
)

// ErrUsernameEmpty is returned when the username is empty or whitespace-only after trim.
var ErrUsernameEmpty = errors.New("username required")

// ErrUsernameTooLong is returned when the username exceeds MaxUsernameLength runes.
var ErrUsernameTooLong = errors.New("username too long")

// ErrDescriptorMissing is returned when neither a zip nor a full lat/lon pair is given.
var ErrDescriptorMissing = errors.New("either zip or lat/lon required")

// ErrDescriptorConflict is returned when a zip is combined with lat or lon.
var ErrDescriptorConflict = errors.New("provide only zip or lat/lon, not both")

// ErrZipInvalid is returned when the zip is too long or contains disallowed characters.
var ErrZipInvalid = errors.New("zip contains invalid characters or is too long")

// ErrLatitudeInvalid is returned when lat is not a number in [-90, 90].
var ErrLatitudeInvalid = errors.New("lat must be a number between -90 and 90")

// ErrLongitudeInvalid is returned when lon is not a number in [-180, 180].
var ErrLongitudeInvalid = errors.New("lon must be a number between -180 and 180")

// Column widths in the users and locations tables.
const (
	MaxUsernameLength = 100
	MaxZipLength      = 20
)

// ValidateUsername trims the input and enforces presence and length.
// Names are case-sensitive, so no other normalization is applied.
func ValidateUsername(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrUsernameEmpty
	}
	if len([]rune(s)) > MaxUsernameLength {
		return "", ErrUsernameTooLong
	}
	return s, nil
}

// ValidateDescriptor checks presence and mutual exclusivity before anything else,
// then parses the chosen representation. A half pair (lat without lon) counts as absent
// unless a zip is also present, in which case it is a conflict.
func ValidateDescriptor(in models.LocationInput) (models.Descriptor, error) {
	zip := strings.TrimSpace(in.Zip)
	lat := strings.TrimSpace(in.Lat)
	lon := strings.TrimSpace(in.Lon)

	if zip == "" && (lat == "" || lon == "") {
		return models.Descriptor{}, ErrDescriptorMissing
	}
	if zip != "" && (lat != "" || lon != "") {
		return models.Descriptor{}, ErrDescriptorConflict
	}

	if zip != "" {
		if err := validateZip(zip); err != nil {
			return models.Descriptor{}, err
		}
		return models.ZipDescriptor(zip), nil
	}

	la, err := parseCoordinate(lat, 90)
	if err != nil {
		return models.Descriptor{}, ErrLatitudeInvalid
	}
	lo, err := parseCoordinate(lon, 180)
	if err != nil {
		return models.Descriptor{}, ErrLongitudeInvalid
	}
	return models.CoordinateDescriptor(la, lo), nil
}

func validateZip(zip string) error {
	r := []rune(zip)
	if len(r) > MaxZipLength {
		return ErrZipInvalid
	}
	for _, c := range r {
		if !isAllowedZipRune(c) {
			return ErrZipInvalid
		}
	}
	return nil
}

// isAllowedZipRune returns true for letters (Unicode), digits, space, comma, hyphen.
// The comma separates an optional country code ("10001,us").
func isAllowedZipRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-':
		return true
	}
	return false
}

func parseCoordinate(s string, bound float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -bound || v > bound {
		return 0, strconv.ErrRange
	}
	return v, nil
}
