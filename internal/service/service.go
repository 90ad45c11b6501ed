package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kjstillabower/location-forecast-service/internal/models"
)

// Error kinds returned by the services. The HTTP layer maps each to a status code;
// anything else is an internal fault. Wrapped errors carry the detail message.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("user not found")
	ErrQuotaExceeded = errors.New("location limit reached")
)

// LocationRepository persists users and their locations.
// ListLocations returns rows in insertion order. InsertLocation must enforce limit
// atomically per user and report inserted=false when the user is already at it.
// UpdateLocation and DeleteLocation are no-ops for unknown ids.
type LocationRepository interface {
	EnsureUser(ctx context.Context, name string) error
	FindUser(ctx context.Context, name string) (models.User, bool, error)
	ListLocations(ctx context.Context, userID int64) ([]models.Location, error)
	CountLocations(ctx context.Context, userID int64) (int, error)
	InsertLocation(ctx context.Context, userID int64, d models.Descriptor, limit int) (loc models.Location, inserted bool, err error)
	UpdateLocation(ctx context.Context, id int64, d models.Descriptor) error
	DeleteLocation(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// ForecastProvider resolves a descriptor into a raw forecast.
type ForecastProvider interface {
	GetForecast(ctx context.Context, d models.Descriptor) (models.Forecast, error)
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns a no-op logger when absent so callers can log unconditionally.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// resultLabel maps an error to a stable metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}
