//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/location-forecast-service/internal/client"
	"github.com/kjstillabower/location-forecast-service/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey      string
	APIURL      string
	DatabaseURL string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultForecastURL
	}

	return IntegrationTestConfig{
		APIKey:      apiKey,
		APIURL:      apiURL,
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

// SetupIntegrationClient creates a forecast client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.ForecastClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupPostgres connects to DATABASE_URL, applies migrations, and empties both tables.
// Skips test if DATABASE_URL is not set or the database is unreachable.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := store.OpenPool(ctx, dsn, 10)
	if err != nil {
		t.Skipf("database not reachable: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := store.Migrate(pool, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE locations, users RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}
