package filter

import (
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// SpeedFilter убирает избыточные отчеты на ходу
//
// Рядом с остановками (заход/выход из порта) сохраняется несколько отчетов,
// чтобы не потерять геометрию подхода, остальные отчеты на ходу отбрасываются.
type SpeedFilter struct {
	config *FilterConfig
	logger *utils.Logger
}

// NewSpeedFilter создает новый фильтр скоростей
func NewSpeedFilter(config *FilterConfig, logger *utils.Logger) *SpeedFilter {
	return &SpeedFilter{
		config: config,
		logger: logger,
	}
}

// Filter применяет фильтр скоростей к хронологическому треку
func (f *SpeedFilter) Filter(track *TrackData) (*FilterResult, error) {
	if len(track.Points) < 2 || f.config.SpeedFilter >= SpeedFilterDisabled {
		return emptyResult(track.Points), nil
	}

	points, stats := f.apply(track.Points)

	result := &FilterResult{
		OriginalCount: len(track.Points),
		FilteredCount: len(track.Points) - len(points),
		Points:        points,
		Statistics:    stats,
	}

	f.logger.WithField("imo", track.IMO).
		WithField("speed_filter", f.config.SpeedFilter).
		WithField("original_points", len(track.Points)).
		WithField("kept_points", len(points)).
		WithField("stationary", stats.Stationary).
		WithField("cruising", stats.Cruising).
		Debug("Speed filtering completed")

	return result, nil
}

func (f *SpeedFilter) apply(points []models.Position) ([]models.Position, FilterStats) {
	stats := FilterStats{}
	minDistance := f.config.MinDistanceMeters
	if minDistance <= 0 {
		minDistance = DefaultMinDistanceMeters
	}
	countdownReset := f.config.StoppedCountdown
	if countdownReset <= 0 {
		countdownReset = DefaultStoppedCountdown
	}

	// Первая точка всегда проходит
	kept := make([]models.Position, 0, len(points))
	kept = append(kept, points[0])
	lastIdx := len(points) - 1
	countdown := 0

	for i := 1; i < lastIdx; i++ {
		point := points[i]
		prev := kept[len(kept)-1]

		if prev.Point().DistanceMeters(point.Point()) < minDistance {
			stats.Stationary++
			continue
		}

		if point.Speed != nil && *point.Speed > stats.MaxSpeedDetected {
			stats.MaxSpeedDetected = *point.Speed
		}

		switch {
		case point.SpeedBelow(f.config.SpeedFilter):
			countdown = countdownReset
			kept = append(kept, point)
		case countdown > 0:
			kept = append(kept, point)
			countdown--
		default:
			stats.Cruising++
		}
	}

	// Последняя точка всегда проходит
	if lastIdx > 0 {
		kept = append(kept, points[lastIdx])
	}

	return kept, stats
}

// Name возвращает имя фильтра
func (f *SpeedFilter) Name() string {
	return "SpeedFilter"
}

// Description возвращает описание фильтра
func (f *SpeedFilter) Description() string {
	return "Collapses cruising reports while keeping the geometry around stops"
}
