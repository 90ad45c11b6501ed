package geo

import "testing"

// TestExtractCoordinates verifies pattern precedence, decoding, and the no-match cases.
func TestExtractCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantOK  bool
		wantLat string
		wantLon string
	}{
		{
			name:    "at segment wins over place-link pair",
			in:      "https://maps.example/@12.345678,98.765432,15z/data=!3d1.1!4d2.2",
			wantOK:  true,
			wantLat: "12.345678",
			wantLon: "98.765432",
		},
		{
			name:    "query q parameter",
			in:      "https://maps.example/?q=40.7128,-74.0060",
			wantOK:  true,
			wantLat: "40.7128",
			wantLon: "-74.0060",
		},
		{
			name:    "query ll parameter after ampersand",
			in:      "https://maps.example/maps?z=3&ll=-33.8688,151.2093",
			wantOK:  true,
			wantLat: "-33.8688",
			wantLon: "151.2093",
		},
		{
			name:    "place link pair",
			in:      "https://maps.example/place/Somewhere/data=!4m5!3d51.5074!4d-0.1278",
			wantOK:  true,
			wantLat: "51.5074",
			wantLon: "-0.1278",
		},
		{
			name:    "query beats place link",
			in:      "https://maps.example/?q=10.5,20.5&x=!3d1.1!4d2.2",
			wantOK:  true,
			wantLat: "10.5",
			wantLon: "20.5",
		},
		{
			name:    "raw pair with space",
			in:      "20.613547, 84.953907",
			wantOK:  true,
			wantLat: "20.613547",
			wantLon: "84.953907",
		},
		{
			name:    "percent-encoded comma",
			in:      "https://maps.example/?q=48.8566%2C2.3522",
			wantOK:  true,
			wantLat: "48.8566",
			wantLon: "2.3522",
		},
		{
			name:    "surrounding whitespace trimmed",
			in:      "   1.5,2.5   ",
			wantOK:  true,
			wantLat: "1.5",
			wantLon: "2.5",
		},
		{
			name:   "integral coordinates never match",
			in:     "20,84",
			wantOK: false,
		},
		{
			name:   "at segment without trailing comma falls through to no match when integral",
			in:     "https://maps.example/@12,98",
			wantOK: false,
		},
		{
			name:   "no coordinates",
			in:     "no coordinates here",
			wantOK: false,
		},
		{
			name:   "escape decoding to invalid utf-8",
			in:     "https://maps.example/%C0?q=20.5,30.5",
			wantOK: false,
		},
		{
			name:    "escaped multibyte utf-8",
			in:      "https://maps.example/place/S%C3%A3o%20Paulo/?q=-23.5505,-46.6333",
			wantOK:  true,
			wantLat: "-23.5505",
			wantLon: "-46.6333",
		},
		{
			name:   "malformed percent escape",
			in:     "https://maps.example/?q=1.5,2.5%zz",
			wantOK: false,
		},
		{
			name:   "empty",
			in:     "",
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractCoordinates(tc.in)
			if ok != tc.wantOK {
				t.Fatalf("ExtractCoordinates(%q) ok = %v, want %v", tc.in, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.LatText != tc.wantLat || got.LonText != tc.wantLon {
				t.Errorf("ExtractCoordinates(%q) = (%s, %s), want (%s, %s)", tc.in, got.LatText, got.LonText, tc.wantLat, tc.wantLon)
			}
		})
	}
}

// TestExtractCoordinates_ParsedValues verifies the float fields match the matched text.
func TestExtractCoordinates_ParsedValues(t *testing.T) {
	got, ok := ExtractCoordinates("https://maps.example/@12.345678,98.765432,15z...!3d1.1!4d2.2")
	if !ok {
		t.Fatal("ExtractCoordinates() ok = false, want true")
	}
	if got.Lat != 12.345678 || got.Lon != 98.765432 {
		t.Errorf("ExtractCoordinates() = (%v, %v), want (12.345678, 98.765432)", got.Lat, got.Lon)
	}
}
