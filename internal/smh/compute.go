package smh

import (
	"context"
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/internal/filter"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// RegionResolver определяет регион (EEZ) для позиций по таблице полигонов
type RegionResolver interface {
	ResolveRegions(ctx context.Context, table, field, status string, positions []models.Position) ([]models.Port, error)
}

// ComputeInput исходные данные расчета за период [From, To]
type ComputeInput struct {
	IMO          int
	MMSI         int
	Positions    []models.Position
	Movements    []models.IHSMovement
	From         time.Time
	To           time.Time
	LastPosition *models.Position // хвост предыдущего снимка для детектора разрывов
}

// Computer выполняет свежий расчет SMH по загруженным данным
type Computer struct {
	ports   PortResolver
	regions RegionResolver
	logger  *utils.Logger
}

// NewComputer создает вычислитель; regions может быть nil
func NewComputer(ports PortResolver, regions RegionResolver, logger *utils.Logger) *Computer {
	return &Computer{
		ports:   ports,
		regions: regions,
		logger:  logger,
	}
}

// Compute строит снимок SMH: визиты и позиции по частотам, разрывы, визиты EEZ
func (c *Computer) Compute(ctx context.Context, req RequestConfig, in ComputeInput, report *ComputationReport) (*models.CacheEntry, error) {
	fcfg := req.FilterConfig()

	clean := models.CleanPositions(in.Positions)
	models.SortChronological(clean)

	start := time.Now()
	marked, err := filter.NewOutlierMarker(fcfg, c.logger).Filter(&filter.TrackData{IMO: in.IMO, Points: clean})
	if err != nil {
		return nil, fmt.Errorf("outlier marking failed: %w", err)
	}
	chrono := marked.Points
	report.Track("outliers", start)

	newestFirst := reversedCopy(chrono)
	accepted := make([]models.Position, 0, len(newestFirst))
	for _, p := range newestFirst {
		if !p.Outlier {
			accepted = append(accepted, p)
		}
	}

	ihsPositions := make([]models.Position, 0, len(in.Movements))
	for _, m := range in.Movements {
		p := m.ToPosition()
		if fallback := m.FallbackPort(); fallback.HasPort() {
			p.Port = &fallback
		}
		if p.Validate() == nil {
			ihsPositions = append(ihsPositions, p)
		}
	}

	entry := models.NewCacheEntry(in.IMO)
	entry.Timestamp = req.Now
	entry.CachedDays = in.To.Sub(in.From).Hours() / 24

	builder := NewPortVisitBuilder(VisitBuilderConfig{
		VoyageStoppedSpeed: req.VoyageStoppedSpeed,
		DetectStops:        req.DetectStops,
		StopSpeed:          req.StopSpeed,
	}, c.logger)

	for _, rate := range req.Rates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rateStart := time.Now()
		key := models.RateKey(rate)

		reduced, err := filter.NewRateChain(rate, in.From, in.To, fcfg, c.logger).
			Filter(&filter.TrackData{IMO: in.IMO, Points: newestFirst})
		if err != nil {
			return nil, fmt.Errorf("rate %d: %w", rate, err)
		}

		stream := make([]models.Position, 0, len(reduced.Points)+len(ihsPositions))
		stream = append(stream, reduced.Points...)
		stream = append(stream, ihsPositions...)
		models.SortChronological(stream)

		if err := c.annotatePorts(ctx, stream, report); err != nil {
			return nil, err
		}

		visits, stops := builder.Build(stream)
		models.ReverseVisits(visits)
		entry.PortVisits[key] = visits

		if rate == req.AISRate {
			models.ReverseVisits(stops)
			entry.NonPortStops = stops
			entry.Options.SMHCount = len(visits)
		}

		if req.KeepsPositions(rate) {
			kept := make([]models.Position, 0, len(reduced.Points))
			for _, p := range stream {
				if !p.IsIHS() {
					kept = append(kept, p)
				}
			}
			models.ReversePositions(kept)
			entry.Positions[key] = kept
		}

		report.Track("rate_"+key, rateStart)
		c.logger.WithField("imo", in.IMO).
			WithField("rate", rate).
			WithField("positions", len(reduced.Points)).
			WithField("visits", len(visits)).
			Debug("Rate computed")
	}

	gapStart := time.Now()
	gapPoints := filter.ReduceRate(accepted, time.Duration(req.AISGapRate)*time.Minute, in.From, in.To)
	gaps := NewAISGapDetector(req.AISGapHours, c.logger).Detect(gapPoints, in.LastPosition, req.Now)
	if err := AnnotateGapPorts(ctx, gaps, c.ports); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Warn("gap port resolution degraded: %v", err)
	}
	entry.AISGaps = gaps
	report.Track("gaps", gapStart)

	if req.EEZRate > 0 && c.regions != nil {
		eezStart := time.Now()
		eez, err := c.eezVisits(ctx, req, accepted, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Warn("EEZ resolution failed: %v", err)
		}
		entry.EEZVisits = eez
		report.Track("eez", eezStart)
	}

	movements := append([]models.IHSMovement(nil), in.Movements...)
	models.SortMovementsNewestFirst(movements)
	entry.IHSMovements = movements

	entry.Options.MMSI = in.MMSI
	entry.Options.Rates = append([]int(nil), req.Rates...)
	entry.Options.SpeedFilter = req.SpeedFilter
	entry.Options.AISGapHours = req.AISGapHours
	entry.Options.AISGapRate = req.AISGapRate
	entry.Options.DetectStops = req.DetectStops
	entry.Options.StopSpeed = req.StopSpeed
	entry.Options.VoyageStoppedSpeed = req.VoyageStoppedSpeed
	entry.Options.MaxPlausibleSpeed = req.MaxPlausibleSpeed
	entry.Options.EEZRate = req.EEZRate
	entry.Options.EEZTable = req.EEZTable
	entry.Options.EEZField = req.EEZField
	entry.Options.ZipData = req.ZipData
	entry.Options.AISPositionsCount = len(clean)
	entry.Options.AISGapsCount = len(gaps)
	entry.Options.DataUntil = in.To
	entry.Options.LastPosition = in.LastPosition
	if len(accepted) > 0 {
		last := accepted[0]
		entry.Options.LastPosition = &last
	}

	return entry, nil
}

// annotatePorts проставляет найденные порты; для записей IHS без порта
// используется порт из самой записи
func (c *Computer) annotatePorts(ctx context.Context, stream []models.Position, report *ComputationReport) error {
	if len(stream) == 0 {
		return nil
	}

	start := time.Now()
	defer report.Track("ports", start)

	var ports []models.Port
	if c.ports != nil {
		var err error
		ports, err = c.ports.ResolvePorts(ctx, stream)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.Warn("port resolution degraded: %v", err)
			c.logger.WithField("positions", len(stream)).
				WithField("error", err).
				Warn("Port resolution failed, continuing without ports")
			ports = nil
		}
	}

	for i := range stream {
		var fallback *models.Port
		if stream[i].IsIHS() {
			fallback = stream[i].Port
		}
		stream[i].Port = fallback
		if i < len(ports) && ports[i].HasPort() {
			port := ports[i]
			stream[i].Port = &port
		}
	}
	return nil
}

func (c *Computer) eezVisits(ctx context.Context, req RequestConfig, accepted []models.Position, in ComputeInput) ([]models.PortVisit, error) {
	points := filter.ReduceRate(accepted, time.Duration(req.EEZRate)*time.Minute, in.From, in.To)
	if len(points) == 0 {
		return []models.PortVisit{}, nil
	}

	regions, err := c.regions.ResolveRegions(ctx, req.EEZTable, req.EEZField, req.EEZStatus, points)
	if err != nil {
		return []models.PortVisit{}, err
	}
	for i := range points {
		if i < len(regions) && regions[i].HasPort() {
			region := regions[i]
			points[i].Port = &region
		}
	}

	visits, _ := NewPortVisitBuilder(VisitBuilderConfig{}, c.logger).Build(points)
	models.ReverseVisits(visits)
	return visits, nil
}

func reversedCopy(positions []models.Position) []models.Position {
	result := append([]models.Position(nil), positions...)
	models.ReversePositions(result)
	return result
}
