package filter

import (
	"github.com/shipscreen/smh-service/internal/models"
)

// TrackData трек судна для фильтрации
type TrackData struct {
	IMO    int               `json:"imo"`
	Points []models.Position `json:"points"`
}

// FilterResult результат фильтрации
type FilterResult struct {
	OriginalCount int               `json:"original_count"`
	FilteredCount int               `json:"filtered_count"`
	Points        []models.Position `json:"points"`
	Statistics    FilterStats       `json:"statistics"`
}

// FilterStats статистика фильтрации
type FilterStats struct {
	Outliers         int     `json:"outliers,omitempty"`
	Stationary       int     `json:"stationary,omitempty"`   // отброшены из-за малого смещения
	Cruising         int     `json:"cruising,omitempty"`     // отброшены отчеты на ходу
	RateSkipped      int     `json:"rate_skipped,omitempty"` // отброшены понижением частоты
	MaxSpeedDetected float64 `json:"max_speed_detected,omitempty"`
}

// TrackFilter интерфейс для фильтров треков
type TrackFilter interface {
	// Filter применяет фильтр к треку
	Filter(track *TrackData) (*FilterResult, error)

	// Name возвращает имя фильтра
	Name() string

	// Description возвращает описание фильтра
	Description() string
}

const (
	// SpeedFilterDisabled порог скорости, начиная с которого фильтр не применяется
	SpeedFilterDisabled = 99.0
	// DefaultMinDistanceMeters минимальное смещение, которое считается движением
	DefaultMinDistanceMeters = 50.0
	// DefaultStoppedCountdown сколько отчетов на ходу сохраняется после остановки
	DefaultStoppedCountdown = 5
)

// FilterConfig конфигурация фильтров
type FilterConfig struct {
	// Порог "остановки" в узлах; >= 99 отключает SpeedFilter
	SpeedFilter float64 `json:"speed_filter"`

	// Минимальное смещение от последней сохраненной точки (м)
	MinDistanceMeters float64 `json:"min_distance_meters"`

	// Сколько отчетов на ходу сохраняется после последней остановки
	StoppedCountdown int `json:"stopped_countdown"`

	// Максимальная правдоподобная скорость между отчетами (узлы)
	MaxPlausibleSpeed float64 `json:"max_plausible_speed"`
}

// DefaultFilterConfig возвращает конфигурацию по умолчанию
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SpeedFilter:       1.5,
		MinDistanceMeters: DefaultMinDistanceMeters,
		StoppedCountdown:  DefaultStoppedCountdown,
		MaxPlausibleSpeed: 60,
	}
}

// emptyResult результат для трека, который фильтр не меняет
func emptyResult(points []models.Position) *FilterResult {
	return &FilterResult{
		OriginalCount: len(points),
		FilteredCount: 0,
		Points:        points,
		Statistics:    FilterStats{},
	}
}
