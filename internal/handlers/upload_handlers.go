package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-upload-service/internal/repository"
	"weather-upload-service/internal/services"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// UploadHandler serves the read-only API over the upload ledger and the
// persisted observations.
type UploadHandler struct {
	uploadService  *services.UploadService
	weatherService *services.WeatherService
	logger         *logging.Logger
	metrics        *metrics.Collector
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(
	uploadService *services.UploadService,
	weatherService *services.WeatherService,
	logger *logging.Logger,
	metricsCollector *metrics.Collector,
) *UploadHandler {
	return &UploadHandler{
		uploadService:  uploadService,
		weatherService: weatherService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// RegisterRoutes registers API routes on the router
func (h *UploadHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/uploads", h.ListUploads).Methods(http.MethodGet)
	router.HandleFunc("/api/weather", h.ListWeather).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// ListUploads handles GET /api/uploads
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/uploads").Observe(time.Since(startTime).Seconds())
	}()

	page, limit := pagination(r)
	filter := repository.UploadFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if userIDStr := r.URL.Query().Get("user_id"); userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			h.sendError(w, r, "invalid user_id", http.StatusBadRequest)
			return
		}
		filter.UserID = &userID
	}

	uploads, total, err := h.uploadService.ListUploads(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_ERROR] Failed to list uploads", logging.Fields{}, err)
		h.sendError(w, r, "failed to list uploads", http.StatusInternalServerError)
		return
	}

	h.sendPaginated(w, r, uploads, total, page, limit)
}

// ListWeather handles GET /api/weather
func (h *UploadHandler) ListWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/weather").Observe(time.Since(startTime).Seconds())
	}()

	page, limit := pagination(r)
	filter := repository.WeatherFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if uploadIDStr := r.URL.Query().Get("upload_id"); uploadIDStr != "" {
		uploadID, err := strconv.ParseInt(uploadIDStr, 10, 64)
		if err != nil {
			h.sendError(w, r, "invalid upload_id", http.StatusBadRequest)
			return
		}
		filter.UploadID = &uploadID
	}

	if startDateStr := r.URL.Query().Get("start_date"); startDateStr != "" {
		startDate, err := time.Parse("2006-01-02", startDateStr)
		if err != nil {
			h.sendError(w, r, "invalid start_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.StartDate = &startDate
	}

	if endDateStr := r.URL.Query().Get("end_date"); endDateStr != "" {
		endDate, err := time.Parse("2006-01-02", endDateStr)
		if err != nil {
			h.sendError(w, r, "invalid end_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.EndDate = &endDate
	}

	observations, total, err := h.weatherService.ListWeather(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_ERROR] Failed to list weather data", logging.Fields{}, err)
		h.sendError(w, r, "failed to list weather data", http.StatusInternalServerError)
		return
	}

	h.sendPaginated(w, r, observations, total, page, limit)
}

// Health handles GET /health
func (h *UploadHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *UploadHandler) sendPaginated(w http.ResponseWriter, r *http.Request, data interface{}, total, page, limit int) {
	totalPages := (total + limit - 1) / limit

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	})
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, "200")
}

func (h *UploadHandler) sendError(w http.ResponseWriter, r *http.Request, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(code))
}

// pagination parses page/limit query params with defaults and caps.
func pagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 100

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}
	return page, limit
}
