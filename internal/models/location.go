package models

// User owns up to MaxLocationsPerUser saved locations. Name is unique and case-sensitive.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"username"`
}

// MaxLocationsPerUser is the number of locations a single user may hold at once.
const MaxLocationsPerUser = 5

// Descriptor is the validated zip-or-coordinates value attached to a Location.
// Exactly one representation is set: Zip, or both Lat and Lon.
type Descriptor struct {
	Zip *string  `json:"zip"`
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// HasCoordinates reports whether the descriptor carries a latitude/longitude pair.
func (d Descriptor) HasCoordinates() bool {
	return d.Lat != nil && d.Lon != nil
}

// HasZip reports whether the descriptor carries a postal code.
func (d Descriptor) HasZip() bool {
	return d.Zip != nil && *d.Zip != ""
}

// Location is a saved place. Unset descriptor fields serialize as null.
type Location struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"-"`
	Descriptor
}

// LocationInput is the raw, untrusted descriptor from a request. Empty strings mean absent.
type LocationInput struct {
	Zip string
	Lat string
	Lon string
}

// ZipDescriptor builds a postal-code descriptor.
func ZipDescriptor(zip string) Descriptor {
	return Descriptor{Zip: &zip}
}

// CoordinateDescriptor builds a latitude/longitude descriptor.
func CoordinateDescriptor(lat, lon float64) Descriptor {
	return Descriptor{Lat: &lat, Lon: &lon}
}
