package services

import (
	"context"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
	"weather-upload-service/pkg/logging"
)

// WeatherService exposes persisted observations to the read API.
type WeatherService struct {
	weather repository.WeatherRepository
	logger  *logging.Logger
}

// NewWeatherService creates a new weather service
func NewWeatherService(weather repository.WeatherRepository, logger *logging.Logger) *WeatherService {
	return &WeatherService{weather: weather, logger: logger}
}

// ListWeather retrieves observations with filtering
func (s *WeatherService) ListWeather(ctx context.Context, filter repository.WeatherFilter) ([]*models.WeatherData, int, error) {
	return s.weather.List(ctx, filter)
}
