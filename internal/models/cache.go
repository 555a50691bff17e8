package models

import (
	"strconv"
	"time"
)

// RateKey ключ частоты дискретизации в кэше ("60" для 60 минут)
func RateKey(rateMinutes int) string {
	return strconv.Itoa(rateMinutes)
}

// CacheOptions параметры и счетчики, с которыми был рассчитан снимок SMH
type CacheOptions struct {
	LastSMHID int64 `json:"last_smh_id"`
	MMSI      int   `json:"mmsi,omitempty"`

	// Параметры расчета
	Rates              []int   `json:"rates"`
	SpeedFilter        float64 `json:"speed_filter"`
	AISGapHours        float64 `json:"ais_gap_hours"`
	AISGapRate         int     `json:"ais_gap_rate"`
	DetectStops        int     `json:"detect_stops"`
	StopSpeed          float64 `json:"stop_speed"`
	VoyageStoppedSpeed float64 `json:"voyage_stopped_speed"`
	MaxPlausibleSpeed  float64 `json:"max_plausible_speed"`
	EEZRate            int     `json:"eez_rate"`
	EEZTable           string  `json:"eez_table,omitempty"`
	EEZField           string  `json:"eez_field,omitempty"`
	ZipData            bool    `json:"zip_data"`

	// Накопительные счетчики ("с момента первого расчета")
	SMHCount          int `json:"smh_count"`
	AISPositionsCount int `json:"ais_positions_count"`
	AISGapsCount      int `json:"ais_gaps_count"`
	UpdateCount       int `json:"update_count"`

	// Граница данных для следующего инкрементального расчета
	DataUntil    time.Time `json:"data_until"`
	LastPosition *Position `json:"last_position,omitempty"`

	// Результат проверки обновлений IHS (политика "пометить, но не пересчитывать")
	IHSStale       bool   `json:"ihs_stale,omitempty"`
	IHSStaleReason string `json:"ihs_stale_reason,omitempty"`
}

// CacheEntry снимок результатов SMH для одного IMO
//
// Списки хранятся от новых к старым.
type CacheEntry struct {
	ID           int64                  `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	IMO          int                    `json:"imo_number"`
	CachedDays   float64                `json:"cached_days"`
	Options      CacheOptions           `json:"options"`
	PortVisits   map[string][]PortVisit `json:"port_visits"`
	Positions    map[string][]Position  `json:"positions"`
	AISGaps      []AISGap               `json:"ais_gaps"`
	IHSMovements []IHSMovement          `json:"ihs_movements"`
	EEZVisits    []PortVisit            `json:"eez_visits"`
	NonPortStops []PortVisit            `json:"non_port_stops"`
}

// NewCacheEntry создает пустой снимок
func NewCacheEntry(imo int) *CacheEntry {
	return &CacheEntry{
		IMO:        imo,
		PortVisits: make(map[string][]PortVisit),
		Positions:  make(map[string][]Position),
	}
}

// Age возраст снимка относительно now
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// HasRate снимок рассчитан для частоты на весь период до DataUntil
//
// Ключ в PortVisits без частоты в Options.Rates не считается: такие
// визиты не досчитывались при последнем обновлении.
func (e *CacheEntry) HasRate(rateMinutes int) bool {
	if _, ok := e.PortVisits[RateKey(rateMinutes)]; !ok {
		return false
	}
	for _, rate := range e.Options.Rates {
		if rate == rateMinutes {
			return true
		}
	}
	return false
}
