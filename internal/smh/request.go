package smh

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/filter"
)

var (
	// ErrInvalidIMO номер IMO не прошел проверку контрольной цифры
	ErrInvalidIMO = errors.New("invalid IMO number")
	// ErrNoTrack для судна не найдено ни одной позиции AIS
	ErrNoTrack = errors.New("no AIS track for vessel")
)

// ResponseType битовая маска разделов ответа
type ResponseType int

const (
	ResponseVisits          ResponseType = 0x01
	ResponsePositions       ResponseType = 0x02
	ResponseIHS             ResponseType = 0x04
	ResponseTrack           ResponseType = 0x08
	ResponseShipStatus      ResponseType = 0x10
	ResponseGaps            ResponseType = 0x20
	ResponseEEZ             ResponseType = 0x40
	ResponseStaticAndVoyage ResponseType = 0x80

	DefaultResponseType = ResponseVisits
)

// Has проверяет наличие раздела в маске
func (r ResponseType) Has(flag ResponseType) bool {
	return r&flag != 0
}

// RequestConfig неизменяемые параметры одного запроса SMH
//
// Передается по значению; все производные величины вычисляются методами.
type RequestConfig struct {
	IMO int `json:"imo"`

	UseCache           int       `json:"use_cache"` // 0 - пересчет, 1 - повторное использование, >1 - обновление на месте
	AISDays            int       `json:"ais_days"`
	AISRate            int       `json:"ais_rate"`
	Rates              []int     `json:"rates"`
	TrackRateThreshold int       `json:"track_rate_threshold"`
	SpeedFilter        float64   `json:"speed_filter"`
	AISGapHours        float64   `json:"ais_gap_hours"`
	AISGapRate         int       `json:"ais_gap_rate"`
	DetectStops        int       `json:"detect_stops"`
	StopSpeed          float64   `json:"stop_speed"`
	VoyageStoppedSpeed float64   `json:"voyage_stopped_speed"`
	MaxPlausibleSpeed  float64   `json:"max_plausible_speed"`
	EEZRate            int       `json:"eez_rate"`
	EEZTable           string    `json:"eez_table,omitempty"`
	EEZField           string    `json:"eez_field,omitempty"`
	EEZStatus          string    `json:"eez_status,omitempty"`
	EEZJoin            int       `json:"eez_join"`
	CheckForIHSUpdates IHSPolicy `json:"check_for_ihs_updates"`
	UseCachedPositions bool      `json:"use_cached_positions"`
	ZipData            bool      `json:"zip_data"`

	MaxItemsPerObject int          `json:"max_items_per_object"`
	PortFilter        []string     `json:"port_filter,omitempty"`
	PortCountLimit    int          `json:"port_count_limit"`
	RequestDays       int          `json:"request_days"`
	ResponseType      ResponseType `json:"response_type"`

	Now time.Time `json:"-"`
}

// NewRequestConfig параметры запроса по умолчанию из конфигурации сервиса
func NewRequestConfig(imo int, cfg config.SMHConfig, now time.Time) RequestConfig {
	rates := make([]int, len(cfg.Rates))
	copy(rates, cfg.Rates)

	return RequestConfig{
		IMO:                imo,
		UseCache:           1,
		AISDays:            cfg.DefaultAISDays,
		AISRate:            cfg.DefaultAISRate,
		Rates:              rates,
		TrackRateThreshold: cfg.TrackRateThreshold,
		SpeedFilter:        cfg.SpeedFilter,
		AISGapHours:        cfg.AISGapHours,
		AISGapRate:         cfg.AISGapRate,
		StopSpeed:          cfg.StopSpeed,
		VoyageStoppedSpeed: cfg.VoyageStoppedSpeed,
		MaxPlausibleSpeed:  cfg.MaxPlausibleSpeed,
		EEZTable:           cfg.EEZTable,
		EEZField:           cfg.EEZField,
		UseCachedPositions: true,
		MaxItemsPerObject:  cfg.MaxItemsPerObject,
		ResponseType:       DefaultResponseType,
		Now:                now.UTC(),
	}
}

// Validate проверяет параметры и нормализует список частот
func (r RequestConfig) Validate() (RequestConfig, error) {
	if err := ValidateIMO(r.IMO); err != nil {
		return r, err
	}
	if r.AISDays <= 0 {
		return r, fmt.Errorf("ais_days must be positive, got %d", r.AISDays)
	}
	if r.AISRate < 0 || r.AISGapRate < 0 || r.EEZRate < 0 {
		return r, fmt.Errorf("rates must not be negative")
	}
	if r.AISGapHours <= 0 {
		return r, fmt.Errorf("ais_gap_hours must be positive, got %f", r.AISGapHours)
	}
	if r.CheckForIHSUpdates < IHSCheckOff || r.CheckForIHSUpdates > IHSCheckReplace {
		return r, fmt.Errorf("check_for_ihs_updates must be in [0,4], got %d", r.CheckForIHSUpdates)
	}
	if r.Now.IsZero() {
		r.Now = time.Now().UTC()
	}

	r.Rates = normalizeRates(r.Rates, r.AISRate)
	if r.ResponseType == 0 {
		r.ResponseType = DefaultResponseType
	}
	return r, nil
}

// BeginDate нижняя граница запрошенной истории
func (r RequestConfig) BeginDate() time.Time {
	return r.Now.Add(-time.Duration(r.AISDays) * 24 * time.Hour)
}

// KeepsPositions сохранять ли позиции для частоты
func (r RequestConfig) KeepsPositions(rate int) bool {
	return r.UseCachedPositions && rate >= r.TrackRateThreshold
}

// FilterConfig конфигурация фильтров для расчета
func (r RequestConfig) FilterConfig() *filter.FilterConfig {
	cfg := filter.DefaultFilterConfig()
	cfg.SpeedFilter = r.SpeedFilter
	if r.MaxPlausibleSpeed > 0 {
		cfg.MaxPlausibleSpeed = r.MaxPlausibleSpeed
	}
	return cfg
}

// MatchesPort проверяет код порта по списку префиксов port_filter
func (r RequestConfig) MatchesPort(code string) bool {
	if len(r.PortFilter) == 0 {
		return true
	}
	for _, prefix := range r.PortFilter {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// ValidateIMO проверяет семизначный номер IMO по контрольной цифре
func ValidateIMO(imo int) error {
	if imo < 1000000 || imo > 9999999 {
		return fmt.Errorf("%w: %d", ErrInvalidIMO, imo)
	}
	digits := imo / 10
	sum := 0
	for weight := 2; weight <= 7; weight++ {
		sum += (digits % 10) * weight
		digits /= 10
	}
	if sum%10 != imo%10 {
		return fmt.Errorf("%w: %d", ErrInvalidIMO, imo)
	}
	return nil
}

func normalizeRates(rates []int, aisRate int) []int {
	seen := make(map[int]bool, len(rates)+1)
	result := make([]int, 0, len(rates)+1)
	for _, rate := range append(append([]int{}, rates...), aisRate) {
		if rate <= 0 || seen[rate] {
			continue
		}
		seen[rate] = true
		result = append(result, rate)
	}
	sort.Ints(result)
	return result
}

// ComputationReport изменяемый отчет о выполнении запроса
//
// Заполняется по ходу конвейера и попадает в metadata ответа.
// Методы безопасны для параллельного вызова.
type ComputationReport struct {
	mu sync.Mutex

	StartedAt      time.Time
	MMSI           int
	CacheDecision  string
	CacheReason    RebuildReason
	IHSUpdate      *IHSUpdate
	IHSListUpdated bool
	AISPositions   int
	IHSMovements   int
	Warnings       []string
	Error          string
	Elapsed        map[string]time.Duration
}

// NewComputationReport создает пустой отчет
func NewComputationReport(now time.Time) *ComputationReport {
	return &ComputationReport{
		StartedAt: now,
		Elapsed:   make(map[string]time.Duration),
	}
}

// Track записывает длительность этапа
func (r *ComputationReport) Track(stage string, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Elapsed[stage] += time.Since(start)
}

// Warn добавляет предупреждение
func (r *ComputationReport) Warn(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Fail фиксирует ошибку расчета
func (r *ComputationReport) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Error = err.Error()
}

// SetMMSI фиксирует MMSI, с которым велся расчет
func (r *ComputationReport) SetMMSI(mmsi int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MMSI = mmsi
}

// ElapsedMillis копия таймингов в миллисекундах
func (r *ComputationReport) ElapsedMillis() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[string]int64, len(r.Elapsed)+1)
	for stage, d := range r.Elapsed {
		result[stage] = d.Milliseconds()
	}
	result["total"] = time.Since(r.StartedAt).Milliseconds()
	return result
}

// WarningsCopy копия предупреждений
func (r *ComputationReport) WarningsCopy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Warnings...)
}
