package smh

import (
	"math"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
)

// DecisionKind вариант решения по кэшу
type DecisionKind string

const (
	// DecisionRebuild полный пересчет без кэша
	DecisionRebuild DecisionKind = "rebuild"
	// DecisionReuse кэш используется, досчитывается только новый период
	DecisionReuse DecisionKind = "reuse"
	// DecisionServe кэш достаточно свежий и отдается без пересчета
	DecisionServe DecisionKind = "serve"
)

// RebuildReason причина отказа от кэша
type RebuildReason string

const (
	ReasonNone                 RebuildReason = ""
	ReasonNoCache              RebuildReason = "no_cache"
	ReasonCacheDisabled        RebuildReason = "use_cache_disabled"
	ReasonCacheError           RebuildReason = "cache_error"
	ReasonInsufficientSpan     RebuildReason = "insufficient_span"
	ReasonEEZRateMismatch      RebuildReason = "eez_rate_mismatch"
	ReasonSpeedFilterMismatch  RebuildReason = "speed_filter_mismatch"
	ReasonGapHoursMismatch     RebuildReason = "gap_hours_mismatch"
	ReasonGapRateMismatch      RebuildReason = "gap_rate_mismatch"
	ReasonStopSpeedMismatch    RebuildReason = "stop_speed_mismatch"
	ReasonVoyageSpeedMismatch  RebuildReason = "voyage_stopped_speed_mismatch"
	ReasonOutlierSpeedMismatch RebuildReason = "max_plausible_speed_mismatch"
	ReasonRateMissing          RebuildReason = "rate_missing"
	ReasonStopsMissing         RebuildReason = "stops_missing"
	ReasonIHSBackfill          RebuildReason = "ihs_backfill"
)

// CacheDecision решение по кэшу: Reuse/Serve с записью или Rebuild с причиной
type CacheDecision struct {
	Kind   DecisionKind
	Reason RebuildReason
	Entry  *models.CacheEntry
	IHS    IHSCheckResult
}

// IsRebuild решение требует полного пересчета
func (d CacheDecision) IsRebuild() bool {
	return d.Kind == DecisionRebuild
}

// Rebuild решение о полном пересчете
func Rebuild(reason RebuildReason) CacheDecision {
	return CacheDecision{Kind: DecisionRebuild, Reason: reason}
}

// EvaluateCache решает, можно ли использовать закэшированный снимок
//
// Чистая функция: все ожидаемые отказы возвращаются как Rebuild с причиной.
func EvaluateCache(entry *models.CacheEntry, req RequestConfig, ihs IHSCheckResult, freshness time.Duration) CacheDecision {
	if req.UseCache == 0 {
		return Rebuild(ReasonCacheDisabled)
	}
	if entry == nil {
		return Rebuild(ReasonNoCache)
	}

	opts := entry.Options
	cachedBegin := opts.DataUntil.Add(-time.Duration(entry.CachedDays * float64(24*time.Hour)))
	if cachedBegin.After(req.BeginDate()) {
		return Rebuild(ReasonInsufficientSpan)
	}
	if opts.EEZRate != req.EEZRate {
		return Rebuild(ReasonEEZRateMismatch)
	}
	if !sameFloat(opts.SpeedFilter, req.SpeedFilter) {
		return Rebuild(ReasonSpeedFilterMismatch)
	}
	if !sameFloat(opts.AISGapHours, req.AISGapHours) {
		return Rebuild(ReasonGapHoursMismatch)
	}
	if opts.AISGapRate != req.AISGapRate {
		return Rebuild(ReasonGapRateMismatch)
	}
	if !sameFloat(opts.StopSpeed, req.StopSpeed) {
		return Rebuild(ReasonStopSpeedMismatch)
	}
	if !sameFloat(opts.VoyageStoppedSpeed, req.VoyageStoppedSpeed) {
		return Rebuild(ReasonVoyageSpeedMismatch)
	}
	if !sameFloat(opts.MaxPlausibleSpeed, req.MaxPlausibleSpeed) {
		return Rebuild(ReasonOutlierSpeedMismatch)
	}
	// при detect_stops > 1 стоянки вставлены в список визитов,
	// снимок с detect_stops = 1 хранит их только отдельно
	if (req.DetectStops > 0 && opts.DetectStops == 0) || (req.DetectStops > 1 && opts.DetectStops < 2) {
		return Rebuild(ReasonStopsMissing)
	}
	for _, rate := range req.Rates {
		if !entry.HasRate(rate) {
			return Rebuild(ReasonRateMissing)
		}
	}
	if ihs.Action == IHSActionRebuild {
		decision := Rebuild(ReasonIHSBackfill)
		decision.IHS = ihs
		return decision
	}

	kind := DecisionReuse
	if ihs.Action == IHSActionNone && entry.Age(req.Now) < freshness {
		kind = DecisionServe
	}
	return CacheDecision{Kind: kind, Entry: entry, IHS: ihs}
}

func sameFloat(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
