package models

import "encoding/json"

// City is the provider-reported place a forecast was resolved to.
type City struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// Forecast is the raw provider payload plus the city fields needed for labelling.
type Forecast struct {
	City City
	Raw  json.RawMessage
}

// ForecastEntry is one aggregation result: either Forecast or Error is set, never both.
type ForecastEntry struct {
	Location Location        `json:"location"`
	Place    *string         `json:"place,omitempty"`
	Forecast json.RawMessage `json:"forecast,omitempty"`
	Error    string          `json:"error,omitempty"`
}
