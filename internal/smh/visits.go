package smh

import (
	"sort"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// MinStopPositions минимальное число медленных отчетов вне порта для стоянки
const MinStopPositions = 3

// VisitBuilderConfig параметры построения визитов
type VisitBuilderConfig struct {
	// Выше этой скорости порт не засчитывается (0 - не проверять)
	VoyageStoppedSpeed float64
	// 0 - без стоянок, 1 - стоянки отдельно, >1 - стоянки и в списке визитов
	DetectStops int
	// Ниже этой скорости отчет вне порта считается стоянкой
	StopSpeed float64
}

// PortVisitBuilder собирает визиты в порты из хронологического потока позиций
type PortVisitBuilder struct {
	config VisitBuilderConfig
	logger *utils.Logger
}

// NewPortVisitBuilder создает построитель визитов
func NewPortVisitBuilder(config VisitBuilderConfig, logger *utils.Logger) *PortVisitBuilder {
	return &PortVisitBuilder{
		config: config,
		logger: logger,
	}
}

// Build строит визиты и стоянки вне порта в хронологическом порядке открытия
//
// positions должны быть отсортированы от старых к новым и содержать
// найденный порт (или nil). Позиции IHS могут быть в том же потоке.
func (b *PortVisitBuilder) Build(positions []models.Position) (visits []models.PortVisit, stops []models.PortVisit) {
	visits = make([]models.PortVisit, 0)
	stops = make([]models.PortVisit, 0)

	var open *models.PortVisit
	var run []models.Position

	closeVisit := func(at time.Time) {
		if open.Departed == nil {
			departed := at
			open.Departed = &departed
		}
		visits = append(visits, *open)
		open = nil
	}

	finishRun := func(at *time.Time) {
		if b.config.DetectStops > 0 && len(run) >= MinStopPositions {
			stops = append(stops, newStop(run, at))
		}
		run = run[:0]
	}

	for i := range positions {
		p := positions[i]
		if p.Outlier || !p.HasCoordinates() {
			continue
		}

		hasPort := b.hasPort(p)

		if !hasPort && !p.IsIHS() && p.SpeedBelow(b.config.StopSpeed) {
			run = append(run, p)
		} else if len(run) > 0 {
			at := p.Timestamp
			finishRun(&at)
		}

		switch {
		case !hasPort && open == nil:
			continue
		case hasPort && open == nil:
			v := newVisit(p)
			open = &v
		case hasPort && open.Port.PortCode != p.Port.PortCode:
			closeVisit(p.Timestamp)
			v := newVisit(p)
			open = &v
		case hasPort:
			if p.SailDateFull != nil {
				departed := *p.SailDateFull
				open.Departed = &departed
				open.SailDateFull = p.SailDateFull
			}
		default:
			closeVisit(p.Timestamp)
		}
	}

	if open != nil {
		visits = append(visits, *open)
	}
	if len(run) > 0 {
		finishRun(nil)
	}

	if b.config.DetectStops > 1 && len(stops) > 0 {
		visits = append(visits, stops...)
		sort.SliceStable(visits, func(i, j int) bool {
			return visits[i].Entered.Before(visits[j].Entered)
		})
	}

	b.logger.WithField("positions", len(positions)).
		WithField("visits", len(visits)).
		WithField("stops", len(stops)).
		Debug("Port visits built")

	return visits, stops
}

// hasPort позиция в порту и не идет быстрее voyage_stopped_speed
func (b *PortVisitBuilder) hasPort(p models.Position) bool {
	if !p.Port.HasPort() {
		return false
	}
	if b.config.VoyageStoppedSpeed > 0 && p.SpeedAbove(b.config.VoyageStoppedSpeed) {
		return false
	}
	return true
}

func newVisit(p models.Position) models.PortVisit {
	v := models.PortVisit{
		Port:      *p.Port,
		Entered:   p.Timestamp,
		Speed:     p.Speed,
		Heading:   p.Heading,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Type:      p.Status,
	}
	if p.IsIHS() {
		v.Type = models.VisitTypeIHS
	}
	if p.SailDateFull != nil {
		departed := *p.SailDateFull
		v.Departed = &departed
		v.SailDateFull = p.SailDateFull
	}
	return v
}

// newStop стоянка по серии медленных отчетов; at == nil - стоянка продолжается
func newStop(run []models.Position, at *time.Time) models.PortVisit {
	first := run[0]
	return models.PortVisit{
		Port:      models.StoppedPort(),
		Entered:   first.Timestamp,
		Departed:  at,
		Speed:     first.Speed,
		Heading:   first.Heading,
		Latitude:  first.Latitude,
		Longitude: first.Longitude,
		Type:      first.Status,
	}
}
