package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/location-forecast-service/internal/client"
	"github.com/kjstillabower/location-forecast-service/internal/models"
	"github.com/kjstillabower/location-forecast-service/internal/observability"
	"github.com/kjstillabower/location-forecast-service/internal/traffic"
)

// ForecastAggregator turns a user's saved locations into one forecast entry each.
// An upstream failure becomes that entry's error and never aborts the batch.
type ForecastAggregator struct {
	locations   *LocationService
	provider    ForecastProvider
	callTimeout time.Duration
	concurrency int
}

// NewForecastAggregator creates a ForecastAggregator. callTimeout bounds each provider
// call (0 = no extra deadline); concurrency bounds in-flight calls (<= 0 means sequential).
func NewForecastAggregator(locations *LocationService, provider ForecastProvider, callTimeout time.Duration, concurrency int) *ForecastAggregator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ForecastAggregator{
		locations:   locations,
		provider:    provider,
		callTimeout: callTimeout,
		concurrency: concurrency,
	}
}

// RefreshForecasts returns one entry per saved location, in location order.
// ErrNotFound for an unknown user is returned as-is; per-location failures are not.
func (a *ForecastAggregator) RefreshForecasts(ctx context.Context, name string) ([]models.ForecastEntry, error) {
	locs, err := a.locations.ListLocations(ctx, name)
	if err != nil {
		return nil, err
	}
	logger := loggerFromContext(ctx)
	start := time.Now()

	entries := make([]models.ForecastEntry, len(locs))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, loc := range locs {
		g.Go(func() error {
			entries[i] = a.resolve(ctx, loc, logger)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, e := range entries {
		if e.Error != "" {
			failed++
		}
	}
	logger.Debug("forecasts refreshed",
		zap.String("username", name),
		zap.Int("locations", len(locs)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return entries, nil
}

// resolve fetches a single forecast under the per-call deadline.
func (a *ForecastAggregator) resolve(ctx context.Context, loc models.Location, logger *zap.Logger) models.ForecastEntry {
	callCtx := ctx
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	fc, err := a.provider.GetForecast(callCtx, loc.Descriptor)
	if err != nil {
		category := client.CategorizeError(err)
		if client.CountsAgainstUpstream(category) {
			traffic.RecordError()
		}
		observability.RecordForecastEntry(string(category))
		logger.Warn("forecast lookup failed",
			zap.Int64("location_id", loc.ID),
			zap.String("category", string(category)),
			zap.Error(err))
		return models.ForecastEntry{Location: loc, Error: entryMessage(err)}
	}
	traffic.RecordSuccess()
	observability.RecordForecastEntry("success")
	return models.ForecastEntry{Location: loc, Place: placeLabel(fc.City), Forecast: fc.Raw}
}

// placeLabel formats "<city>, <country>", "<city>", or nil when the city is unnamed.
func placeLabel(c models.City) *string {
	if c.Name == "" {
		return nil
	}
	label := c.Name
	if c.Country != "" {
		label += ", " + c.Country
	}
	return &label
}

// entryMessage is the error text surfaced in a ForecastEntry.
func entryMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "forecast request timed out"
	}
	return err.Error()
}
