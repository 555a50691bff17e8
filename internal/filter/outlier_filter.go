package filter

import (
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// OutlierMarker помечает позиции с неправдоподобным скачком относительно соседей
//
// Позиции не удаляются: выставляется флаг Outlier, и дальше по конвейеру
// такие точки пропускаются построителем визитов и детектором разрывов.
type OutlierMarker struct {
	config *FilterConfig
	logger *utils.Logger
}

// NewOutlierMarker создает новый маркер выбросов
func NewOutlierMarker(config *FilterConfig, logger *utils.Logger) *OutlierMarker {
	return &OutlierMarker{
		config: config,
		logger: logger,
	}
}

// Filter помечает выбросы в хронологическом треке
func (f *OutlierMarker) Filter(track *TrackData) (*FilterResult, error) {
	if len(track.Points) < 2 || f.config.MaxPlausibleSpeed <= 0 {
		return emptyResult(track.Points), nil
	}

	points := make([]models.Position, len(track.Points))
	copy(points, track.Points)

	stats := FilterStats{}
	lastAccepted := 0
	for i := 1; i < len(points); i++ {
		speed := f.impliedSpeed(points[lastAccepted], points[i])
		if speed > stats.MaxSpeedDetected {
			stats.MaxSpeedDetected = speed
		}
		if speed <= f.config.MaxPlausibleSpeed || f.confirmed(points, lastAccepted, i) {
			lastAccepted = i
			continue
		}

		points[i].Outlier = true
		stats.Outliers++

		f.logger.WithField("imo", track.IMO).
			WithField("point_index", i).
			WithField("lat", points[i].Latitude).
			WithField("lon", points[i].Longitude).
			WithField("implied_speed_kn", speed).
			Debug("Position marked as outlier")
	}

	if stats.Outliers > 0 {
		f.logger.WithField("imo", track.IMO).
			WithField("points", len(points)).
			WithField("outliers", stats.Outliers).
			Info("Outlier marking completed")
	}

	return &FilterResult{
		OriginalCount: len(track.Points),
		FilteredCount: 0,
		Points:        points,
		Statistics:    stats,
	}, nil
}

// confirmed скачок подтвержден, если следующая позиция согласуется с текущей,
// но не с последней принятой (судно действительно переместилось)
func (f *OutlierMarker) confirmed(points []models.Position, lastAccepted, i int) bool {
	if i+1 >= len(points) {
		return false
	}
	next := points[i+1]
	return f.impliedSpeed(points[i], next) <= f.config.MaxPlausibleSpeed &&
		f.impliedSpeed(points[lastAccepted], next) > f.config.MaxPlausibleSpeed
}

// impliedSpeed скорость (узлы), необходимая для перехода между позициями
func (f *OutlierMarker) impliedSpeed(from, to models.Position) float64 {
	distance := from.Point().DistanceNM(to.Point())
	hours := to.Timestamp.Sub(from.Timestamp).Hours()
	if hours <= 0 {
		// Одинаковое время: допускаем только дрожание в пределах минимального смещения
		minDistance := f.config.MinDistanceMeters
		if minDistance <= 0 {
			minDistance = DefaultMinDistanceMeters
		}
		if from.Point().DistanceMeters(to.Point()) <= minDistance {
			return 0
		}
		return f.config.MaxPlausibleSpeed + 1
	}
	return distance / hours
}

// Name возвращает имя фильтра
func (f *OutlierMarker) Name() string {
	return "OutlierMarker"
}

// Description возвращает описание фильтра
func (f *OutlierMarker) Description() string {
	return "Flags positions whose implied speed from the last accepted position is implausible"
}
