package smh

import (
	"sort"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
)

// VisitTypeEEZ тип визита в экономическую зону при eez_join
const VisitTypeEEZ = "EEZ"

// Metadata сводка по расчету в ответе
type Metadata struct {
	IMO               int              `json:"imo"`
	MMSI              int              `json:"mmsi,omitempty"`
	ComputedAt        time.Time        `json:"computed_at"`
	CacheDecision     string           `json:"cache_decision"`
	CacheReason       RebuildReason    `json:"cache_reason,omitempty"`
	CachedDays        float64          `json:"cached_days"`
	AISRate           int              `json:"ais_rate"`
	SMHCount          int              `json:"smh_count"`
	AISPositionsCount int              `json:"ais_positions_count"`
	AISGapsCount      int              `json:"ais_gaps_count"`
	UpdateCount       int              `json:"update_count"`
	EEZRate           int              `json:"eez_rate"`
	IHSStale          bool             `json:"ihs_stale,omitempty"`
	IHSStaleReason    string           `json:"ihs_stale_reason,omitempty"`
	IHSUpdate         *IHSUpdate       `json:"ihs_update,omitempty"`
	IHSListUpdated    bool             `json:"ihs_list_updated,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
	Elapsed           map[string]int64 `json:"elapsed_ms"`
	ShipName          string           `json:"ship_name,omitempty"`
}

// Response тело ответа SMH; набор разделов задается response_type
type Response struct {
	Metadata        Metadata               `json:"metadata"`
	Visits          []models.PortVisit     `json:"visits,omitempty"`
	Positions       []models.Position      `json:"positions,omitempty"`
	IHSMovementData []models.IHSMovement   `json:"ihs_movement_data,omitempty"`
	Track           []models.Position      `json:"track,omitempty"`
	ShipStatus      map[string]interface{} `json:"ship_status,omitempty"`
	AISGaps         []models.AISGap        `json:"ais_gaps,omitempty"`
	EEZVisits       []models.PortVisit     `json:"eez_visits,omitempty"`
	StaticAndVoyage map[string]interface{} `json:"static_and_voyage,omitempty"`
	NonPortStops    []models.PortVisit     `json:"non_port_stops,omitempty"`
}

// LiveData данные, которые запрашиваются напрямую у AIS и не кэшируются
type LiveData struct {
	Track           []models.Position
	ShipStatus      map[string]interface{}
	StaticAndVoyage map[string]interface{}
}

// PrepareResponse формирует ответ из снимка кэша
//
// Порядок: удаление стоянок, port_filter, port_count_limit, request_days,
// max_items_per_object. entry не изменяется.
func PrepareResponse(entry *models.CacheEntry, req RequestConfig, report *ComputationReport, live LiveData) *Response {
	visits := append([]models.PortVisit(nil), entry.PortVisits[models.RateKey(req.AISRate)]...)
	positions := append([]models.Position(nil), entry.Positions[models.RateKey(req.AISRate)]...)
	ihs := append([]models.IHSMovement(nil), entry.IHSMovements...)
	gaps := append([]models.AISGap(nil), entry.AISGaps...)
	eez := append([]models.PortVisit(nil), entry.EEZVisits...)
	stops := append([]models.PortVisit(nil), entry.NonPortStops...)

	if req.EEZJoin > 0 {
		visits = joinEEZ(visits, eez)
	}

	// (a) стоянки вне порта нужны были только для внутреннего учета
	if req.DetectStops < 2 {
		visits = filterVisits(visits, func(v models.PortVisit) bool { return !v.IsStop() })
	}

	// (b) port_filter: стоянки и зоны EEZ проходят без проверки
	if len(req.PortFilter) > 0 {
		visits = filterVisits(visits, func(v models.PortVisit) bool {
			return v.IsStop() || v.Type == VisitTypeEEZ || req.MatchesPort(v.Port.PortCode)
		})
	}

	// (c) port_count_limit
	if req.PortCountLimit > 0 && len(visits) > req.PortCountLimit {
		visits = visits[:req.PortCountLimit]
	}

	// (d) request_days от хвоста
	if req.RequestDays > 0 && float64(req.RequestDays) < entry.CachedDays {
		cutoff := req.Now.Add(-time.Duration(req.RequestDays) * 24 * time.Hour)
		keep := func(v models.PortVisit) bool { return v.IsOpen() || !v.Departed.Before(cutoff) }
		visits = filterVisits(visits, keep)
		eez = filterVisits(eez, keep)
		stops = filterVisits(stops, keep)
		positions = filterPositions(positions, cutoff)
		ihs = filterMovements(ihs, cutoff)
		gaps = filterGaps(gaps, cutoff)
	}

	// (e) max_items_per_object
	if n := req.MaxItemsPerObject; n > 0 {
		visits = truncate(visits, n)
		eez = truncate(eez, n)
		stops = truncate(stops, n)
		ihs = truncate(ihs, n)
		gaps = truncate(gaps, n)
		positions = downsampleEvenly(positions, n)
	}

	resp := &Response{Metadata: buildMetadata(entry, req, report, live)}
	rt := req.ResponseType
	if rt.Has(ResponseVisits) {
		resp.Visits = nonNil(visits)
	}
	if rt.Has(ResponsePositions) {
		resp.Positions = nonNil(positions)
	}
	if rt.Has(ResponseIHS) {
		resp.IHSMovementData = nonNil(ihs)
	}
	if rt.Has(ResponseTrack) {
		track := live.Track
		if n := req.MaxItemsPerObject; n > 0 {
			track = downsampleEvenly(track, n)
		}
		resp.Track = nonNil(track)
	}
	if rt.Has(ResponseShipStatus) {
		resp.ShipStatus = live.ShipStatus
	}
	if rt.Has(ResponseGaps) {
		resp.AISGaps = nonNil(gaps)
	}
	if rt.Has(ResponseEEZ) {
		resp.EEZVisits = nonNil(eez)
	}
	if rt.Has(ResponseStaticAndVoyage) {
		resp.StaticAndVoyage = live.StaticAndVoyage
		resp.NonPortStops = nonNil(stops)
	}
	return resp
}

func buildMetadata(entry *models.CacheEntry, req RequestConfig, report *ComputationReport, live LiveData) Metadata {
	opts := entry.Options
	meta := Metadata{
		IMO:               entry.IMO,
		MMSI:              opts.MMSI,
		ComputedAt:        entry.Timestamp,
		CachedDays:        entry.CachedDays,
		AISRate:           req.AISRate,
		SMHCount:          opts.SMHCount,
		AISPositionsCount: opts.AISPositionsCount,
		AISGapsCount:      opts.AISGapsCount,
		UpdateCount:       opts.UpdateCount,
		EEZRate:           opts.EEZRate,
		IHSStale:          opts.IHSStale,
		IHSStaleReason:    opts.IHSStaleReason,
	}
	if report != nil {
		meta.CacheDecision = report.CacheDecision
		meta.CacheReason = report.CacheReason
		meta.IHSUpdate = report.IHSUpdate
		meta.IHSListUpdated = report.IHSListUpdated
		meta.Warnings = report.WarningsCopy()
		meta.Elapsed = report.ElapsedMillis()
		if report.MMSI != 0 {
			meta.MMSI = report.MMSI
		}
	}
	if name, ok := live.ShipStatus["name"].(string); ok {
		meta.ShipName = name
	}
	return meta
}

// joinEEZ добавляет визиты в зоны EEZ к визитам в порты (от новых к старым)
func joinEEZ(visits, eez []models.PortVisit) []models.PortVisit {
	result := make([]models.PortVisit, 0, len(visits)+len(eez))
	result = append(result, visits...)
	for _, v := range eez {
		v.Type = VisitTypeEEZ
		result = append(result, v)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Entered.After(result[j].Entered)
	})
	return result
}

func filterVisits(visits []models.PortVisit, keep func(models.PortVisit) bool) []models.PortVisit {
	result := visits[:0:0]
	for _, v := range visits {
		if keep(v) {
			result = append(result, v)
		}
	}
	return result
}

func filterPositions(positions []models.Position, cutoff time.Time) []models.Position {
	result := positions[:0:0]
	for _, p := range positions {
		if !p.Timestamp.Before(cutoff) {
			result = append(result, p)
		}
	}
	return result
}

func filterMovements(movements []models.IHSMovement, cutoff time.Time) []models.IHSMovement {
	result := movements[:0:0]
	for _, m := range movements {
		if !m.Timestamp.Before(cutoff) {
			result = append(result, m)
		}
	}
	return result
}

func filterGaps(gaps []models.AISGap, cutoff time.Time) []models.AISGap {
	result := gaps[:0:0]
	for _, g := range gaps {
		if g.IsOngoing() || !g.CurrentReportTimestamp.Before(cutoff) {
			result = append(result, g)
		}
	}
	return result
}

func truncate[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// downsampleEvenly выбирает n элементов с равным шагом, сохраняя первый и последний
func downsampleEvenly[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	if n == 1 {
		return items[:1]
	}
	result := make([]T, 0, n)
	step := float64(len(items)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		result = append(result, items[int(float64(i)*step+0.5)])
	}
	return result
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
