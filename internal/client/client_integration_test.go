//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/location-forecast-service/internal/models"
)

func integrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	c, err := NewOpenWeatherClient(apiKey, DefaultForecastURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	if err := integrationClient(t).ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

func TestOpenWeatherClient_GetForecast_Integration(t *testing.T) {
	c := integrationClient(t)
	ctx := context.Background()

	for _, d := range []models.Descriptor{
		models.ZipDescriptor("10001"),
		models.CoordinateDescriptor(51.5074, -0.1278),
	} {
		fc, err := c.GetForecast(ctx, d)
		if err != nil {
			t.Fatalf("GetForecast(%+v) error = %v", d, err)
		}
		if fc.City.Name == "" || len(fc.Raw) == 0 {
			t.Errorf("GetForecast(%+v) = city %+v, %d bytes", d, fc.City, len(fc.Raw))
		}
	}
}
