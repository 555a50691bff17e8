package filter

import (
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// RateReducer понижает частоту отчетов до одного раза в RateMinutes
//
// Вход: позиции от новых к старым. Выход: от старых к новым.
// Самая старая позиция окна добавляется всегда, даже если не проходит по шагу.
type RateReducer struct {
	RateMinutes int
	From        time.Time // stop_date, нижняя граница окна
	To          time.Time // start_date, верхняя граница окна
	logger      *utils.Logger
}

// NewRateReducer создает фильтр понижения частоты для окна [from, to]
func NewRateReducer(rateMinutes int, from, to time.Time, logger *utils.Logger) *RateReducer {
	return &RateReducer{
		RateMinutes: rateMinutes,
		From:        from,
		To:          to,
		logger:      logger,
	}
}

// Filter применяет понижение частоты к треку
func (f *RateReducer) Filter(track *TrackData) (*FilterResult, error) {
	if f.RateMinutes < 0 {
		return nil, fmt.Errorf("rate must not be negative, got %d", f.RateMinutes)
	}

	points := ReduceRate(track.Points, time.Duration(f.RateMinutes)*time.Minute, f.From, f.To)

	result := &FilterResult{
		OriginalCount: len(track.Points),
		FilteredCount: len(track.Points) - len(points),
		Points:        points,
		Statistics: FilterStats{
			RateSkipped: len(track.Points) - len(points),
		},
	}

	f.logger.WithField("imo", track.IMO).
		WithField("rate_min", f.RateMinutes).
		WithField("input_points", len(track.Points)).
		WithField("output_points", len(points)).
		Debug("Rate reduction completed")

	return result, nil
}

// ReduceRate оставляет не более одного отчета за rate внутри окна [from, to]
//
// newestFirst должен быть отсортирован от новых к старым; результат
// возвращается в хронологическом порядке.
func ReduceRate(newestFirst []models.Position, rate time.Duration, from, to time.Time) []models.Position {
	if len(newestFirst) == 0 {
		return []models.Position{}
	}

	result := make([]models.Position, 0, len(newestFirst)/2+1)
	lastKept := -1
	oldestInWindow := -1

	for i := range newestFirst {
		p := newestFirst[i]
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		oldestInWindow = i

		keep := lastKept < 0
		if !keep {
			// отчеты с тем же временем, что и последний сохраненный, тоже сохраняются
			elapsed := newestFirst[lastKept].Timestamp.Sub(p.Timestamp)
			keep = elapsed == 0 || elapsed >= rate
		}
		if keep {
			result = append(result, p)
			lastKept = i
		}
	}

	// Якорь окна: самая старая позиция внутри окна
	if oldestInWindow >= 0 && lastKept != oldestInWindow {
		result = append(result, newestFirst[oldestInWindow])
	}

	models.ReversePositions(result)
	return result
}

// Name возвращает имя фильтра
func (f *RateReducer) Name() string {
	return "RateReducer"
}

// Description возвращает описание фильтра
func (f *RateReducer) Description() string {
	return fmt.Sprintf("Keeps at most one report per %d minutes, always anchoring the oldest report in the window", f.RateMinutes)
}
