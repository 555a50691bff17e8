package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/internal/client"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/internal/repository"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// AISSource сервис позиций AIS
type AISSource interface {
	GetTrack(ctx context.Context, mmsi int, since time.Time, count, downsampleSeconds int) ([]models.Position, error)
	GetStatus(ctx context.Context, mmsi int) (map[string]interface{}, error)
	GetStaticAndVoyage(ctx context.Context, mmsi int) (map[string]interface{}, error)
	GetMMSIFromIMO(ctx context.Context, imo int) (int, error)
}

// ShipRegistry реестр судов и история заходов IHS
type ShipRegistry interface {
	ListShipMovementHistory(ctx context.Context, imo int, since time.Time) ([]models.IHSMovement, error)
	GetShipByIMO(ctx context.Context, imo int) (*client.Ship, error)
	ListMMSIHistory(ctx context.Context, imo int) ([]client.MMSIRecord, error)
}

// Task выполняет запрос SMH: кэш, проверка IHS, досчет, слияние, сохранение, ответ
type Task struct {
	ais       AISSource
	registry  ShipRegistry
	computer  *smh.Computer
	store     repository.Store
	locks     *IMOLocks
	freshness time.Duration
	logger    *utils.Logger
}

// NewTask создает исполнителя задач
func NewTask(ais AISSource, registry ShipRegistry, computer *smh.Computer, store repository.Store, freshness time.Duration, logger *utils.Logger) *Task {
	return &Task{
		ais:       ais,
		registry:  registry,
		computer:  computer,
		store:     store,
		locks:     NewIMOLocks(),
		freshness: freshness,
		logger:    logger,
	}
}

// fetched исходные данные свежего расчета
type fetched struct {
	mmsi      int
	positions []models.Position
	movements []models.IHSMovement
}

// Run выполняет запрос SMH для imo
func (t *Task) Run(ctx context.Context, imo int, req smh.RequestConfig) (*smh.Response, error) {
	start := time.Now()
	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	req.IMO = imo
	req, err := req.Validate()
	if err != nil {
		metrics.TaskDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	report := smh.NewComputationReport(start)
	logger := t.logger.WithField("imo", imo)

	unlock, err := t.locks.Lock(ctx, imo)
	if err != nil {
		return nil, fmt.Errorf("waiting for IMO %d lock: %w", imo, err)
	}
	defer unlock()

	resp, outcome, err := t.run(ctx, req, report)
	metrics.TaskDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		report.Fail(err)
		logger.WithField("error", err).
			WithField("elapsed_ms", time.Since(start).Milliseconds()).
			Error("SMH task failed")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"outcome":    outcome,
		"reason":     report.CacheReason,
		"warnings":   len(resp.Metadata.Warnings),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("SMH task completed")

	return resp, nil
}

func (t *Task) run(ctx context.Context, req smh.RequestConfig, report *smh.ComputationReport) (*smh.Response, string, error) {
	logger := t.logger.WithField("imo", req.IMO)

	// Снимок из кэша; ошибка чтения равносильна отсутствию кэша
	var cached *models.CacheEntry
	cacheFailed := false
	if req.UseCache != 0 {
		entry, err := t.store.GetLatest(ctx, req.IMO)
		switch {
		case err == nil:
			cached = entry
		case errors.Is(err, repository.ErrNotFound):
		default:
			if ctx.Err() != nil {
				return nil, "error", ctx.Err()
			}
			cacheFailed = true
			report.Warn("cache read failed: %v", err)
			logger.WithField("error", err).Warn("Failed to read smh cache, rebuilding")
		}
	}

	// Проверка обновлений IHS в закэшированном периоде
	var (
		ihs          = smh.IHSCheckResult{Policy: req.CheckForIHSUpdates, Action: smh.IHSActionNone}
		prefetched   []models.IHSMovement
		hasPrefetch  bool
		cachedBegins time.Time
	)
	if cached != nil && req.CheckForIHSUpdates != smh.IHSCheckOff {
		cachedBegins = cached.Options.DataUntil.Add(-time.Duration(cached.CachedDays * float64(24*time.Hour)))
		since := cachedBegins
		if begin := req.BeginDate(); begin.Before(since) {
			since = begin
		}

		ihsStart := time.Now()
		movements, err := t.registry.ListShipMovementHistory(ctx, req.IMO, since)
		report.Track("ihs_check", ihsStart)
		if err != nil {
			return nil, "error", fmt.Errorf("failed to fetch IHS history for update check: %w", err)
		}
		prefetched, hasPrefetch = movements, true

		ihs = smh.CheckIHSUpdates(cached.IHSMovements, movementsSince(movements, cachedBegins, false), cached.Options.DataUntil, req.CheckForIHSUpdates)
		if ihs.Update != nil {
			report.IHSUpdate = ihs.Update
			metrics.IHSUpdatesDetected.WithLabelValues(string(ihs.Action)).Inc()
			logger.WithField("action", ihs.Action).
				WithField("reason", ihs.Update.Reason).
				Info("IHS back-fill detected")
		}
	}

	decision := smh.EvaluateCache(cached, req, ihs, t.freshness)
	if cacheFailed {
		decision = smh.Rebuild(smh.ReasonCacheError)
	}
	report.CacheDecision = string(decision.Kind)
	report.CacheReason = decision.Reason
	metrics.CacheDecisions.WithLabelValues(string(decision.Kind), string(decision.Reason)).Inc()

	logger.WithField("decision", decision.Kind).
		WithField("reason", decision.Reason).
		Debug("Cache evaluated")

	if decision.Kind == smh.DecisionServe {
		live := t.fetchLive(ctx, req, decision.Entry.Options.MMSI, report)
		report.SetMMSI(decision.Entry.Options.MMSI)
		return smh.PrepareResponse(decision.Entry, req, report, live), "served", nil
	}

	from := req.BeginDate()
	var lastPosition *models.Position
	if decision.Kind == smh.DecisionReuse {
		from = decision.Entry.Options.DataUntil
		lastPosition = decision.Entry.Options.LastPosition
	}

	knownMMSI := 0
	if cached != nil {
		knownMMSI = cached.Options.MMSI
	}

	fetchStart := time.Now()
	data, err := t.fetch(ctx, req, from, knownMMSI, decision.IsRebuild(), prefetched, hasPrefetch)
	report.Track("fetch", fetchStart)
	if err != nil {
		return nil, "error", err
	}
	report.SetMMSI(data.mmsi)
	report.AISPositions = len(data.positions)
	report.IHSMovements = len(data.movements)
	metrics.PositionsProcessed.Add(float64(len(data.positions)))

	fresh, err := t.computer.Compute(ctx, req, smh.ComputeInput{
		IMO:          req.IMO,
		MMSI:         data.mmsi,
		Positions:    data.positions,
		Movements:    data.movements,
		From:         from,
		To:           req.Now,
		LastPosition: lastPosition,
	}, report)
	if err != nil {
		return nil, "error", fmt.Errorf("SMH computation failed: %w", err)
	}

	var result *models.CacheEntry
	outcome := "rebuilt"
	if decision.Kind == smh.DecisionReuse {
		outcome = "reused"
		replaceIHS := decision.IHS.Action == smh.IHSActionReplace
		if replaceIHS {
			// полный список за закэшированный период плюс новые записи
			all := movementsSince(prefetched, cachedBegins, false)
			models.SortMovementsNewestFirst(all)
			fresh.IHSMovements = all
			report.IHSListUpdated = true
		}
		result = smh.MergeCache(decision.Entry, fresh, smh.MergeOptions{
			ReplaceIHS:    replaceIHS,
			KeepPositions: req.UseCachedPositions,
		})
		if decision.IHS.Action == smh.IHSActionMarkStale && decision.IHS.Update != nil {
			result.Options.IHSStale = true
			result.Options.IHSStaleReason = decision.IHS.Update.Reason
		}
	} else {
		result = fresh
		if req.UseCache > 1 && cached != nil {
			result.Options.LastSMHID = cached.ID
			result.Options.UpdateCount = cached.Options.UpdateCount + 1
		}
	}

	t.persist(ctx, result, req, report)

	live := t.fetchLive(ctx, req, data.mmsi, report)
	return smh.PrepareResponse(result, req, report, live), outcome, nil
}

// fetch загружает AIS и IHS параллельно
func (t *Task) fetch(ctx context.Context, req smh.RequestConfig, from time.Time, knownMMSI int, rebuild bool, prefetched []models.IHSMovement, hasPrefetch bool) (*fetched, error) {
	data := &fetched{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mmsi, err := t.resolveMMSI(gctx, req.IMO, knownMMSI)
		if err != nil {
			return err
		}
		positions, err := t.ais.GetTrack(gctx, mmsi, from, 0, 0)
		if err != nil {
			return fmt.Errorf("failed to fetch AIS track: %w", err)
		}
		if len(positions) == 0 && rebuild {
			if recoveredMMSI, recovered := t.recoverMMSI(gctx, req.IMO, mmsi, from); len(recovered) > 0 {
				mmsi, positions = recoveredMMSI, recovered
			}
		}
		data.mmsi = mmsi
		data.positions = positions
		return nil
	})

	g.Go(func() error {
		if hasPrefetch {
			data.movements = movementsSince(prefetched, from, !rebuild)
			return nil
		}
		movements, err := t.registry.ListShipMovementHistory(gctx, req.IMO, from)
		if err != nil {
			return fmt.Errorf("failed to fetch IHS history: %w", err)
		}
		data.movements = movementsSince(movements, from, !rebuild)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rebuild && len(data.positions) == 0 && len(data.movements) == 0 {
		return nil, fmt.Errorf("IMO %d MMSI %d: %w", req.IMO, data.mmsi, smh.ErrNoTrack)
	}
	return data, nil
}

// resolveMMSI MMSI из реестра, затем из AIS
func (t *Task) resolveMMSI(ctx context.Context, imo, known int) (int, error) {
	ship, err := t.registry.GetShipByIMO(ctx, imo)
	if err == nil && ship.MMSI > 0 {
		return ship.MMSI, nil
	}
	if err != nil && ctx.Err() != nil {
		return 0, ctx.Err()
	}

	mmsi, aisErr := t.ais.GetMMSIFromIMO(ctx, imo)
	if aisErr == nil {
		return mmsi, nil
	}
	if known > 0 {
		return known, nil
	}
	if errors.Is(aisErr, client.ErrNotFound) {
		return 0, fmt.Errorf("IMO %d: %w", imo, smh.ErrNoTrack)
	}
	return 0, fmt.Errorf("failed to resolve MMSI for IMO %d: %w", imo, aisErr)
}

// recoverMMSI перебирает прежние MMSI судна, пока не найдется трек
func (t *Task) recoverMMSI(ctx context.Context, imo, current int, from time.Time) (int, []models.Position) {
	history, err := t.registry.ListMMSIHistory(ctx, imo)
	if err != nil {
		t.logger.WithField("imo", imo).WithField("error", err).Warn("Failed to load MMSI history")
		metrics.MMSIRecoveries.WithLabelValues("failed").Inc()
		return 0, nil
	}

	for _, record := range history {
		if record.MMSI == current || record.MMSI <= 0 {
			continue
		}
		positions, err := t.ais.GetTrack(ctx, record.MMSI, from, 0, 0)
		if err != nil || len(positions) == 0 {
			continue
		}
		t.logger.WithField("imo", imo).
			WithField("mmsi", record.MMSI).
			WithField("previous_mmsi", current).
			Info("Recovered AIS track under previous MMSI")
		metrics.MMSIRecoveries.WithLabelValues("recovered").Inc()
		return record.MMSI, positions
	}

	metrics.MMSIRecoveries.WithLabelValues("failed").Inc()
	return 0, nil
}

// persist сохраняет снимок; ошибка записи не отменяет ответ
func (t *Task) persist(ctx context.Context, entry *models.CacheEntry, req smh.RequestConfig, report *smh.ComputationReport) {
	overwrite := req.UseCache > 1 && entry.Options.LastSMHID > 0

	saveStart := time.Now()
	err := t.store.Save(ctx, entry, overwrite)
	report.Track("persist", saveStart)
	if err == nil {
		return
	}

	if errors.Is(err, repository.ErrCacheConflict) {
		report.Warn("cache not saved: concurrent update of row %d", entry.Options.LastSMHID)
	} else {
		report.Warn("cache not saved: %v", err)
	}
	t.logger.WithField("imo", entry.IMO).
		WithField("overwrite", overwrite).
		WithField("error", err).
		Warn("Failed to persist smh cache entry")
}

// fetchLive данные, которые не кэшируются: трек, статус, статические данные
func (t *Task) fetchLive(ctx context.Context, req smh.RequestConfig, mmsi int, report *smh.ComputationReport) smh.LiveData {
	live := smh.LiveData{}
	rt := req.ResponseType
	if !rt.Has(smh.ResponseTrack) && !rt.Has(smh.ResponseShipStatus) && !rt.Has(smh.ResponseStaticAndVoyage) {
		return live
	}
	if mmsi == 0 {
		report.Warn("live data skipped: MMSI unknown")
		return live
	}

	start := time.Now()
	defer report.Track("live", start)

	// ошибки живых данных не фатальны, поэтому группа без отмены
	var g errgroup.Group
	if rt.Has(smh.ResponseTrack) {
		g.Go(func() error {
			track, err := t.ais.GetTrack(ctx, mmsi, req.BeginDate(), req.MaxItemsPerObject, 0)
			if err != nil {
				report.Warn("track unavailable: %v", err)
				return nil
			}
			models.SortNewestFirst(track)
			live.Track = track
			return nil
		})
	}
	if rt.Has(smh.ResponseShipStatus) {
		g.Go(func() error {
			status, err := t.ais.GetStatus(ctx, mmsi)
			if err != nil {
				report.Warn("ship status unavailable: %v", err)
				return nil
			}
			live.ShipStatus = status
			return nil
		})
	}
	if rt.Has(smh.ResponseStaticAndVoyage) {
		g.Go(func() error {
			data, err := t.ais.GetStaticAndVoyage(ctx, mmsi)
			if err != nil {
				report.Warn("static and voyage data unavailable: %v", err)
				return nil
			}
			live.StaticAndVoyage = data
			return nil
		})
	}
	_ = g.Wait()

	return live
}

// movementsSince записи IHS не раньше from (strict: строго позже)
func movementsSince(movements []models.IHSMovement, from time.Time, strict bool) []models.IHSMovement {
	result := make([]models.IHSMovement, 0, len(movements))
	for _, m := range movements {
		if m.Timestamp.Before(from) || (strict && m.Timestamp.Equal(from)) {
			continue
		}
		result = append(result, m)
	}
	return result
}
