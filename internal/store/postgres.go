package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/location-forecast-service/internal/models"
	"github.com/kjstillabower/location-forecast-service/internal/observability"
	"github.com/kjstillabower/location-forecast-service/internal/service"
)

var _ service.LocationRepository = (*PostgresStore)(nil)

// PostgresStore is a LocationRepository backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The caller owns the pool's lifetime.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPool parses dsn, applies maxConns (0 keeps the pgx default), and verifies the connection.
func OpenPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PoolStats reports pool occupancy in the shape the metrics gauges expect.
func (s *PostgresStore) PoolStats() observability.PoolStats {
	st := s.pool.Stat()
	return observability.PoolStats{
		Acquired: st.AcquiredConns(),
		Idle:     st.IdleConns(),
		Total:    st.TotalConns(),
	}
}

func (s *PostgresStore) EnsureUser(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username) VALUES ($1) ON CONFLICT (username) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindUser(ctx context.Context, name string) (models.User, bool, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username FROM users WHERE username = $1`, name).Scan(&u.ID, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return u, true, nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, userID int64) ([]models.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, zip, lat, lon FROM locations WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select locations: %w", err)
	}
	defer rows.Close()

	locs := []models.Location{}
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.UserID, &l.Zip, &l.Lat, &l.Lon); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locs, nil
}

func (s *PostgresStore) CountLocations(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM locations WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count locations: %w", err)
	}
	return n, nil
}

// InsertLocation locks the owning user row so concurrent inserts for the same
// user serialize on the count check.
func (s *PostgresStore) InsertLocation(ctx context.Context, userID int64, d models.Descriptor, limit int) (models.Location, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Location{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Location{}, false, service.ErrNotFound
	}
	if err != nil {
		return models.Location{}, false, fmt.Errorf("lock user: %w", err)
	}

	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM locations WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return models.Location{}, false, fmt.Errorf("count locations: %w", err)
	}
	if n >= limit {
		return models.Location{}, false, nil
	}

	loc := models.Location{UserID: userID, Descriptor: d}
	if err := tx.QueryRow(ctx,
		`INSERT INTO locations (user_id, zip, lat, lon) VALUES ($1, $2, $3, $4) RETURNING id`,
		userID, d.Zip, d.Lat, d.Lon).Scan(&loc.ID); err != nil {
		return models.Location{}, false, fmt.Errorf("insert location: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Location{}, false, fmt.Errorf("commit: %w", err)
	}
	return loc, true, nil
}

// UpdateLocation replaces all three descriptor columns in one statement.
func (s *PostgresStore) UpdateLocation(ctx context.Context, id int64, d models.Descriptor) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE locations SET zip = $1, lat = $2, lon = $3 WHERE id = $4`,
		d.Zip, d.Lat, d.Lon, id); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteLocation(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
