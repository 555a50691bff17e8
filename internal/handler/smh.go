package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// SMHRunner выполняет запрос SMH (service.Task)
type SMHRunner interface {
	Run(ctx context.Context, imo int, req smh.RequestConfig) (*smh.Response, error)
}

// SMHHandler обработчик GET /api/v1/smh/:imo
type SMHHandler struct {
	runner   SMHRunner
	defaults config.SMHConfig
	timeout  time.Duration
	logger   *utils.Logger
}

// NewSMHHandler создает обработчик
func NewSMHHandler(runner SMHRunner, defaults config.SMHConfig, timeout time.Duration, logger *utils.Logger) *SMHHandler {
	if timeout <= 0 {
		timeout = 110 * time.Second
	}
	return &SMHHandler{
		runner:   runner,
		defaults: defaults,
		timeout:  timeout,
		logger:   logger,
	}
}

// GetSMH возвращает историю движения судна
// GET /api/v1/smh/9074729?ais_days=90&response_type=5&use_cache=1
func (h *SMHHandler) GetSMH(c *gin.Context) {
	imo, err := strconv.Atoi(c.Param("imo"))
	if err != nil || smh.ValidateIMO(imo) != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_imo",
			"message": fmt.Sprintf("Invalid IMO number: %q", c.Param("imo")),
		})
		return
	}

	req := smh.NewRequestConfig(imo, h.defaults, time.Now())
	req, err = ParseParams(req, func(key string) (string, bool) {
		return c.GetQuery(key)
	})
	if err == nil {
		req, err = req.Validate()
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_parameter",
			"message": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.runner.Run(ctx, imo, req)
	if err != nil {
		status, code := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithField("imo", imo).WithField("error", err).Error("SMH request failed")
		}
		c.JSON(status, gin.H{
			"code":    code,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, smh.ErrInvalidIMO):
		return http.StatusBadRequest, "invalid_imo"
	case errors.Is(err, smh.ErrNoTrack):
		return http.StatusNotFound, "no_track"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

// ParseParams накладывает параметры запроса на значения по умолчанию
//
// Имена совпадают с json-тегами RequestConfig; списки через запятую.
func ParseParams(req smh.RequestConfig, get func(key string) (string, bool)) (smh.RequestConfig, error) {
	ints := map[string]*int{
		"use_cache":            &req.UseCache,
		"ais_days":             &req.AISDays,
		"ais_rate":             &req.AISRate,
		"track_rate_threshold": &req.TrackRateThreshold,
		"ais_gap_rate":         &req.AISGapRate,
		"detect_stops":         &req.DetectStops,
		"eez_rate":             &req.EEZRate,
		"eez_join":             &req.EEZJoin,
		"max_items_per_object": &req.MaxItemsPerObject,
		"port_count_limit":     &req.PortCountLimit,
		"request_days":         &req.RequestDays,
	}
	for key, dst := range ints {
		raw, ok := get(key)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("%s must be an integer, got %q", key, raw)
		}
		*dst = v
	}

	floats := map[string]*float64{
		"speed_filter":         &req.SpeedFilter,
		"ais_gap_hours":        &req.AISGapHours,
		"stop_speed":           &req.StopSpeed,
		"voyage_stopped_speed": &req.VoyageStoppedSpeed,
		"max_plausible_speed":  &req.MaxPlausibleSpeed,
	}
	for key, dst := range floats {
		raw, ok := get(key)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, fmt.Errorf("%s must be a number, got %q", key, raw)
		}
		*dst = v
	}

	bools := map[string]*bool{
		"use_cached_positions": &req.UseCachedPositions,
		"zip_data":             &req.ZipData,
	}
	for key, dst := range bools {
		raw, ok := get(key)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("%s must be a boolean, got %q", key, raw)
		}
		*dst = v
	}

	strs := map[string]*string{
		"eez_table":  &req.EEZTable,
		"eez_field":  &req.EEZField,
		"eez_status": &req.EEZStatus,
	}
	for key, dst := range strs {
		if raw, ok := get(key); ok {
			*dst = raw
		}
	}

	if raw, ok := get("check_for_ihs_updates"); ok && raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("check_for_ihs_updates must be an integer, got %q", raw)
		}
		req.CheckForIHSUpdates = smh.IHSPolicy(v)
	}

	if raw, ok := get("response_type"); ok && raw != "" {
		// допускается и десятичная, и шестнадцатеричная запись (0x85)
		v, err := strconv.ParseInt(raw, 0, 32)
		if err != nil {
			return req, fmt.Errorf("response_type must be an integer bitmask, got %q", raw)
		}
		req.ResponseType = smh.ResponseType(v)
	}

	if raw, ok := get("rates"); ok && raw != "" {
		rates := make([]int, 0)
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.Atoi(part)
			if err != nil || v < 0 {
				return req, fmt.Errorf("rates must be a list of minutes, got %q", raw)
			}
			rates = append(rates, v)
		}
		req.Rates = rates
	}

	if raw, ok := get("port_filter"); ok {
		req.PortFilter = nil
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.PortFilter = append(req.PortFilter, part)
			}
		}
	}

	return req, nil
}
