package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/location-forecast-service/internal/client"
	"github.com/kjstillabower/location-forecast-service/internal/models"
)

func seedUser(t *testing.T, svc *LocationService, name string, zips ...string) []models.Location {
	t.Helper()
	ctx := context.Background()
	if err := svc.RegisterUser(ctx, name); err != nil {
		t.Fatalf("RegisterUser error = %v", err)
	}
	var out []models.Location
	for _, z := range zips {
		loc, err := svc.AddLocation(ctx, name, models.LocationInput{Zip: z})
		if err != nil {
			t.Fatalf("AddLocation(%s) error = %v", z, err)
		}
		out = append(out, loc)
	}
	return out
}

func okForecast(city, country string) models.Forecast {
	raw, _ := json.Marshal(map[string]any{"city": map[string]string{"name": city, "country": country}})
	return models.Forecast{City: models.City{Name: city, Country: country}, Raw: raw}
}

func TestRefreshForecasts_UnknownUser(t *testing.T) {
	svc := NewLocationService(newFakeRepo())
	agg := NewForecastAggregator(svc, providerFunc(func(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
		t.Error("provider must not be called for an unknown user")
		return models.Forecast{}, nil
	}), time.Second, 5)

	if _, err := agg.RefreshForecasts(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RefreshForecasts(ghost) error = %v, want ErrNotFound", err)
	}
	if _, err := agg.RefreshForecasts(context.Background(), " "); !errors.Is(err, ErrValidation) {
		t.Errorf("RefreshForecasts(blank) error = %v, want ErrValidation", err)
	}
}

func TestRefreshForecasts_NoLocations(t *testing.T) {
	svc := NewLocationService(newFakeRepo())
	seedUser(t, svc, "bob")
	agg := NewForecastAggregator(svc, providerFunc(func(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
		return models.Forecast{}, nil
	}), time.Second, 5)

	entries, err := agg.RefreshForecasts(context.Background(), "bob")
	if err != nil {
		t.Fatalf("RefreshForecasts error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %#v, want empty non-nil slice", entries)
	}
}

// TestRefreshForecasts_OrderAndIsolation mixes failures with random latency; output
// must line up one-to-one with the saved locations.
func TestRefreshForecasts_OrderAndIsolation(t *testing.T) {
	svc := NewLocationService(newFakeRepo())
	locs := seedUser(t, svc, "alice", "10001", "bad01", "60601", "bad02", "02134")

	provider := providerFunc(func(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		if strings.HasPrefix(*d.Zip, "bad") {
			return models.Forecast{}, fmt.Errorf("%w: %s", client.ErrLocationNotFound, *d.Zip)
		}
		return okForecast("City"+*d.Zip, "US"), nil
	})
	agg := NewForecastAggregator(svc, provider, time.Second, 3)

	entries, err := agg.RefreshForecasts(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RefreshForecasts error = %v", err)
	}
	if len(entries) != len(locs) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(locs))
	}
	for i, e := range entries {
		if e.Location.ID != locs[i].ID {
			t.Errorf("entries[%d].Location.ID = %d, want %d", i, e.Location.ID, locs[i].ID)
		}
		failing := strings.HasPrefix(*locs[i].Zip, "bad")
		switch {
		case failing && (e.Error == "" || e.Forecast != nil || e.Place != nil):
			t.Errorf("entries[%d] = %+v, want error only", i, e)
		case !failing && (e.Error != "" || e.Forecast == nil):
			t.Errorf("entries[%d] = %+v, want forecast", i, e)
		case !failing && *e.Place != "City"+*locs[i].Zip+", US":
			t.Errorf("entries[%d].Place = %q", i, *e.Place)
		}
	}
}

func TestRefreshForecasts_RespectsConcurrencyLimit(t *testing.T) {
	svc := NewLocationService(newFakeRepo())
	seedUser(t, svc, "alice", "1", "2", "3", "4", "5")

	var inFlight, peak atomic.Int32
	provider := providerFunc(func(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return okForecast("X", ""), nil
	})
	agg := NewForecastAggregator(svc, provider, time.Second, 2)

	if _, err := agg.RefreshForecasts(context.Background(), "alice"); err != nil {
		t.Fatalf("RefreshForecasts error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRefreshForecasts_PerCallTimeout(t *testing.T) {
	svc := NewLocationService(newFakeRepo())
	seedUser(t, svc, "alice", "slow", "fast")

	provider := providerFunc(func(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
		if *d.Zip == "slow" {
			<-ctx.Done()
			return models.Forecast{}, ctx.Err()
		}
		return okForecast("Fast", "GB"), nil
	})
	agg := NewForecastAggregator(svc, provider, 30*time.Millisecond, 5)

	start := time.Now()
	entries, err := agg.RefreshForecasts(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RefreshForecasts error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("RefreshForecasts took %v, per-call timeout not applied", elapsed)
	}
	if entries[0].Error != "forecast request timed out" {
		t.Errorf("slow entry error = %q", entries[0].Error)
	}
	if entries[1].Error != "" || *entries[1].Place != "Fast, GB" {
		t.Errorf("fast entry = %+v", entries[1])
	}
}

func TestRefreshForecasts_LogsFailuresWithRequestLogger(t *testing.T) {
	svc := NewLocationService(newFakeRepo())
	seedUser(t, svc, "alice", "10001")

	core, logs := observer.New(zap.WarnLevel)
	ctx := context.WithValue(context.Background(), "logger", zap.New(core))

	agg := NewForecastAggregator(svc, providerFunc(func(ctx context.Context, d models.Descriptor) (models.Forecast, error) {
		return models.Forecast{}, errUpstream
	}), time.Second, 1)

	entries, _ := agg.RefreshForecasts(ctx, "alice")
	if entries[0].Error != errUpstream.Error() {
		t.Errorf("entry error = %q, want %q", entries[0].Error, errUpstream.Error())
	}
	if logs.FilterMessage("forecast lookup failed").Len() != 1 {
		t.Errorf("expected one 'forecast lookup failed' log, got %d", logs.Len())
	}
}

func TestPlaceLabel(t *testing.T) {
	tests := []struct {
		city models.City
		want string
	}{
		{models.City{Name: "London", Country: "GB"}, "London, GB"},
		{models.City{Name: "Springfield"}, "Springfield"},
		{models.City{Country: "US"}, ""},
	}
	for _, tt := range tests {
		got := placeLabel(tt.city)
		switch {
		case tt.want == "" && got != nil:
			t.Errorf("placeLabel(%+v) = %q, want nil", tt.city, *got)
		case tt.want != "" && (got == nil || *got != tt.want):
			t.Errorf("placeLabel(%+v) = %v, want %q", tt.city, got, tt.want)
		}
	}
}
