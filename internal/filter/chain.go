package filter

import (
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/pkg/utils"
)

// FilterChain цепочка фильтров для последовательного применения
type FilterChain struct {
	filters []TrackFilter
	logger  *utils.Logger
}

// NewFilterChain создает новую цепочку фильтров
func NewFilterChain(logger *utils.Logger, filters ...TrackFilter) *FilterChain {
	chain := &FilterChain{
		filters: make([]TrackFilter, 0, len(filters)),
		logger:  logger,
	}
	for _, f := range filters {
		chain.AddFilter(f)
	}
	return chain
}

// NewRateChain цепочка для одной частоты: понижение частоты, затем фильтр скоростей.
// На вход ожидается трек от новых к старым, на выходе хронологический порядок.
func NewRateChain(rateMinutes int, from, to time.Time, config *FilterConfig, logger *utils.Logger) *FilterChain {
	return NewFilterChain(logger,
		NewRateReducer(rateMinutes, from, to, logger),
		NewSpeedFilter(config, logger),
	)
}

// AddFilter добавляет фильтр в цепочку
func (fc *FilterChain) AddFilter(filter TrackFilter) {
	fc.filters = append(fc.filters, filter)
}

// Filter применяет все фильтры в цепочке
func (fc *FilterChain) Filter(track *TrackData) (*FilterResult, error) {
	if len(track.Points) == 0 {
		return emptyResult(track.Points), nil
	}

	originalCount := len(track.Points)
	currentTrack := *track // Копируем трек
	combinedStats := FilterStats{}

	for _, filter := range fc.filters {
		start := time.Now()

		result, err := filter.Filter(&currentTrack)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filter.Name(), err)
		}

		fc.logger.WithField("filter", filter.Name()).
			WithField("imo", track.IMO).
			WithField("input_points", len(currentTrack.Points)).
			WithField("output_points", len(result.Points)).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("Filter applied")

		currentTrack.Points = result.Points

		// Объединяем статистику
		combinedStats.Outliers += result.Statistics.Outliers
		combinedStats.Stationary += result.Statistics.Stationary
		combinedStats.Cruising += result.Statistics.Cruising
		combinedStats.RateSkipped += result.Statistics.RateSkipped
		if result.Statistics.MaxSpeedDetected > combinedStats.MaxSpeedDetected {
			combinedStats.MaxSpeedDetected = result.Statistics.MaxSpeedDetected
		}
	}

	return &FilterResult{
		OriginalCount: originalCount,
		FilteredCount: originalCount - len(currentTrack.Points),
		Points:        currentTrack.Points,
		Statistics:    combinedStats,
	}, nil
}

// Name возвращает имя цепочки фильтров
func (fc *FilterChain) Name() string {
	return "FilterChain"
}

// Description возвращает описание цепочки фильтров
func (fc *FilterChain) Description() string {
	filterNames := make([]string, len(fc.filters))
	for i, filter := range fc.filters {
		filterNames[i] = filter.Name()
	}
	return fmt.Sprintf("Chain of filters: %v", filterNames)
}
