package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrPortsDegraded сервис портов недоступен, позиции остались без портов
var ErrPortsDegraded = errors.New("port resolution degraded")

const (
	DefaultPortRetries    = 3
	DefaultPortRetryDelay = time.Second
)

// ResilientPortResolver повторы и circuit breaker вокруг резолвера портов
type ResilientPortResolver struct {
	inner   smh.PortResolver
	cb      *gobreaker.CircuitBreaker[[]models.Port]
	retries int
	delay   time.Duration
	logger  *utils.Logger
}

// NewResilientPortResolver оборачивает inner
func NewResilientPortResolver(inner smh.PortResolver, retries int, delay time.Duration, logger *utils.Logger) *ResilientPortResolver {
	if retries < 1 {
		retries = DefaultPortRetries
	}
	if delay < 0 {
		delay = DefaultPortRetryDelay
	}

	cb := gobreaker.NewCircuitBreaker[[]models.Port](gobreaker.Settings{
		Name:        "port-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.PortCircuitState.Set(circuitStateValue(to))
			logger.WithField("breaker", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("Port service circuit breaker state changed")
		},
	})

	return &ResilientPortResolver{
		inner:   inner,
		cb:      cb,
		retries: retries,
		delay:   delay,
		logger:  logger,
	}
}

// ResolvePorts до retries попыток с паузой delay; открытый breaker не ретраится
func (r *ResilientPortResolver) ResolvePorts(ctx context.Context, positions []models.Position) ([]models.Port, error) {
	if len(positions) == 0 {
		return []models.Port{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		ports, err := r.cb.Execute(func() ([]models.Port, error) {
			return r.inner.ResolvePorts(ctx, positions)
		})
		if err == nil {
			return ports, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == r.retries {
			break
		}

		metrics.PortResolutionRetries.Inc()
		r.logger.WithField("attempt", attempt).
			WithField("positions", len(positions)).
			WithField("error", err).
			Debug("Retrying port lookup")

		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	metrics.PortResolutionDegraded.Inc()
	r.logger.WithField("positions", len(positions)).
		WithField("error", lastErr).
		Warn("Port lookup failed after retries")

	return nil, fmt.Errorf("%w: %v", ErrPortsDegraded, lastErr)
}

// State текущее состояние breaker
func (r *ResilientPortResolver) State() string {
	return r.cb.State().String()
}

func circuitStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
