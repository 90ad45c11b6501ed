package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/location-forecast-service/internal/models"
	"github.com/kjstillabower/location-forecast-service/internal/observability"
	"github.com/kjstillabower/location-forecast-service/internal/validation"
)

// LocationService validates every request and enforces the per-user quota
// before touching the repository. All mutations go through it.
type LocationService struct {
	repo  LocationRepository
	limit int
}

// NewLocationService returns a LocationService using models.MaxLocationsPerUser as the quota.
func NewLocationService(repo LocationRepository) *LocationService {
	return &LocationService{repo: repo, limit: models.MaxLocationsPerUser}
}

// RegisterUser ensures a user named name exists. Calling it again is not an error.
func (s *LocationService) RegisterUser(ctx context.Context, name string) error {
	name, err := validation.ValidateUsername(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.repo.EnsureUser(ctx, name); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	loggerFromContext(ctx).Debug("user registered", zap.String("username", name))
	return nil
}

// FindUser returns the user named name or ErrNotFound.
func (s *LocationService) FindUser(ctx context.Context, name string) (models.User, error) {
	name, err := validation.ValidateUsername(name)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	u, ok, err := s.repo.FindUser(ctx, name)
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

// ListLocations returns the user's locations in insertion order.
func (s *LocationService) ListLocations(ctx context.Context, name string) ([]models.Location, error) {
	u, err := s.FindUser(ctx, name)
	if err != nil {
		return nil, err
	}
	locs, err := s.repo.ListLocations(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	if locs == nil {
		locs = []models.Location{}
	}
	return locs, nil
}

// AddLocation validates in, checks the user exists and is under quota, then stores it.
// Validation runs before any repository call.
func (s *LocationService) AddLocation(ctx context.Context, name string, in models.LocationInput) (models.Location, error) {
	name, err := validation.ValidateUsername(name)
	if err != nil {
		return models.Location{}, s.fail("add", fmt.Errorf("%w: %w", ErrValidation, err))
	}
	d, err := validation.ValidateDescriptor(in)
	if err != nil {
		return models.Location{}, s.fail("add", fmt.Errorf("%w: %w", ErrValidation, err))
	}
	u, err := s.FindUser(ctx, name)
	if err != nil {
		return models.Location{}, s.fail("add", err)
	}

	count, err := s.repo.CountLocations(ctx, u.ID)
	if err != nil {
		return models.Location{}, s.fail("add", fmt.Errorf("count locations: %w", err))
	}
	if count >= s.limit {
		return models.Location{}, s.fail("add", fmt.Errorf("%w: max %d locations", ErrQuotaExceeded, s.limit))
	}

	loc, inserted, err := s.repo.InsertLocation(ctx, u.ID, d, s.limit)
	if err != nil {
		return models.Location{}, s.fail("add", fmt.Errorf("insert location: %w", err))
	}
	if !inserted {
		return models.Location{}, s.fail("add", fmt.Errorf("%w: max %d locations", ErrQuotaExceeded, s.limit))
	}
	observability.RecordLocationMutation("add", "success")
	loggerFromContext(ctx).Info("location added", zap.String("username", name), zap.Int64("location_id", loc.ID))
	return loc, nil
}

// UpdateLocation replaces the descriptor of location id. Ownership is not checked:
// any caller holding an id may update it. Unknown ids are a silent no-op.
func (s *LocationService) UpdateLocation(ctx context.Context, id int64, in models.LocationInput) error {
	d, err := validation.ValidateDescriptor(in)
	if err != nil {
		return s.fail("update", fmt.Errorf("%w: %w", ErrValidation, err))
	}
	if err := s.repo.UpdateLocation(ctx, id, d); err != nil {
		return s.fail("update", fmt.Errorf("update location %d: %w", id, err))
	}
	observability.RecordLocationMutation("update", "success")
	loggerFromContext(ctx).Info("location updated", zap.Int64("location_id", id))
	return nil
}

// DeleteLocation removes location id if it exists. Deleting twice is not an error.
func (s *LocationService) DeleteLocation(ctx context.Context, id int64) error {
	if err := s.repo.DeleteLocation(ctx, id); err != nil {
		return s.fail("delete", fmt.Errorf("delete location %d: %w", id, err))
	}
	observability.RecordLocationMutation("delete", "success")
	loggerFromContext(ctx).Info("location deleted", zap.Int64("location_id", id))
	return nil
}

// Ping reports repository reachability for health checks.
func (s *LocationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// fail records a rejected or failed mutation and returns err unchanged.
func (s *LocationService) fail(op string, err error) error {
	observability.RecordLocationMutation(op, resultLabel(err))
	return err
}
