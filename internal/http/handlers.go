package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/location-forecast-service/internal/geo"
	"github.com/kjstillabower/location-forecast-service/internal/models"
	"github.com/kjstillabower/location-forecast-service/internal/service"
	"github.com/kjstillabower/location-forecast-service/internal/traffic"
)

// maxBodyBytes caps request bodies; every accepted body is a handful of short fields.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	locations        *service.LocationService
	forecasts        *service.ForecastAggregator
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil (readiness and shutdown only).
func NewHandler(
	locations *service.LocationService,
	forecasts *service.ForecastAggregator,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		locations:    locations,
		forecasts:    forecasts,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// flexValue accepts a JSON string, number, or null and keeps its text form.
// null and "" both mean absent.
type flexValue string

func (f *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string, number, or null, got %s", b)
	}
	*f = flexValue(n.String())
	return nil
}

type userRequest struct {
	Username string `json:"username"`
}

type locationRequest struct {
	Username string    `json:"username"`
	Zip      flexValue `json:"zip"`
	Lat      flexValue `json:"lat"`
	Lon      flexValue `json:"lon"`
}

func (l locationRequest) input() models.LocationInput {
	return models.LocationInput{Zip: string(l.Zip), Lat: string(l.Lat), Lon: string(l.Lon)}
}

type coordinatesRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id,omitempty"`
}

// PostUser handles POST /user.
func (h *Handler) PostUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.locations.RegisterUser(r.Context(), body.Username); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "user created or exists"})
}

// GetLocations handles GET /locations?username=.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.locations.ListLocations(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

// PostLocation handles POST /location.
func (h *Handler) PostLocation(w http.ResponseWriter, r *http.Request) {
	var body locationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	loc, err := h.locations.AddLocation(r.Context(), body.Username, body.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "location added", ID: loc.ID})
}

// PutLocation handles PUT /location/{id}.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := locationID(w, r)
	if !ok {
		return
	}
	var body locationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.locations.UpdateLocation(r.Context(), id, body.input()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "location updated"})
}

// DeleteLocation handles DELETE /location/{id}. Missing ids still return 200.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := locationID(w, r)
	if !ok {
		return
	}
	if err := h.locations.DeleteLocation(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "location deleted"})
}

// GetWeather handles GET /weather?username=. Per-location upstream failures are
// reported inside the entries; the response is 200 whenever the user resolves.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	traffic.RecordRequest()
	entries, err := h.forecasts.RefreshForecasts(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// PostCoordinates handles POST /coordinates: finds a lat/lon pair in a pasted map link.
func (h *Handler) PostCoordinates(w http.ResponseWriter, r *http.Request) {
	var body coordinatesRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "text required")
		return
	}
	c, ok := geo.ExtractCoordinates(body.Text)
	if !ok {
		writeError(w, r, http.StatusNotFound, "COORDINATES_NOT_FOUND", "no coordinates found in text")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// locationID parses the {id} path variable. The route only matches digits, so failure means overflow.
func locationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid location id")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		loggerFrom(r).Debug("invalid request body", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps a service error kind to its status and code. Anything
// unrecognized is a 500 with a generic message; the cause is only logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", detail(err, service.ErrValidation))
	case errors.Is(err, service.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(w, r, http.StatusBadRequest, "LOCATION_LIMIT", detail(err, service.ErrQuotaExceeded))
	default:
		loggerFrom(r).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// detail strips the kind prefix so clients see "username required" rather than
// "validation failed: username required".
func detail(err, kind error) string {
	msg := strings.TrimPrefix(err.Error(), kind.Error()+": ")
	if msg == "" {
		return kind.Error()
	}
	return msg
}

// loggerFrom returns the request-scoped logger or a no-op logger.
func loggerFrom(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
