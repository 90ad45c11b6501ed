package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/location-forecast-service/internal/observability"
)

// RouterConfig controls the middleware applied to the forecast route.
type RouterConfig struct {
	// Limiter throttles GET /weather; nil disables it.
	Limiter *rate.Limiter
	// WeatherTimeout bounds a whole GET /weather request; 0 disables it.
	WeatherTimeout time.Duration
}

// NewRouter registers every route on a new mux router and wraps it with CORS.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/user", h.PostUser).Methods(http.MethodPost)
	router.HandleFunc("/locations", h.GetLocations).Methods(http.MethodGet)
	router.HandleFunc("/location", h.PostLocation).Methods(http.MethodPost)
	router.HandleFunc("/location/{id:[0-9]+}", h.PutLocation).Methods(http.MethodPut)
	router.HandleFunc("/location/{id:[0-9]+}", h.DeleteLocation).Methods(http.MethodDelete)
	router.HandleFunc("/coordinates", h.PostCoordinates).Methods(http.MethodPost)

	weather := router.Path("/weather").Subrouter()
	weather.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.WeatherTimeout > 0 {
		weather.Use(TimeoutMiddleware(cfg.WeatherTimeout))
	}
	weather.Methods(http.MethodGet).HandlerFunc(h.GetWeather)

	return CORSMiddleware(router)
}
