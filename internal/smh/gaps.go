package smh

import (
	"context"
	"fmt"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// PortResolver определяет порт для каждой позиции (пакетно, с сохранением порядка)
type PortResolver interface {
	ResolvePorts(ctx context.Context, positions []models.Position) ([]models.Port, error)
}

// AISGapDetector ищет интервалы без отчетов AIS длиннее порога
type AISGapDetector struct {
	threshold time.Duration
	logger    *utils.Logger
}

// NewAISGapDetector создает детектор разрывов с порогом в часах
func NewAISGapDetector(gapHours float64, logger *utils.Logger) *AISGapDetector {
	return &AISGapDetector{
		threshold: time.Duration(gapHours * float64(time.Hour)),
		logger:    logger,
	}
}

// Detect возвращает разрывы от новых к старым
//
// positions в хронологическом порядке; lastPosition - хвост предыдущего
// расчета из кэша, от него отсчитывается первый разрыв. Незакрытый разрыв
// (до now) может быть только один и всегда стоит первым.
func (d *AISGapDetector) Detect(positions []models.Position, lastPosition *models.Position, now time.Time) []models.AISGap {
	gaps := make([]models.AISGap, 0)

	var prev *models.Position
	if lastPosition != nil {
		seed := *lastPosition
		prev = &seed
	}

	for i := range positions {
		current := positions[i]
		if current.Outlier {
			continue
		}
		if prev == nil {
			prev = &current
			continue
		}

		diff := current.Timestamp.Sub(prev.Timestamp)
		if diff < 0 {
			// устаревший или повторный отчет
			continue
		}
		if diff > d.threshold {
			last := *prev
			currentTimestamp := current.Timestamp
			gaps = append(gaps, models.AISGap{
				GapHours:               diff.Hours(),
				LastReportTimestamp:    last.Timestamp,
				LastReport:             &last,
				CurrentReportTimestamp: &currentTimestamp,
				CurrentReport:          &current,
			})
		}
		prev = &current
	}

	if prev != nil {
		if diff := now.Sub(prev.Timestamp); diff > d.threshold {
			last := *prev
			gaps = append(gaps, models.AISGap{
				GapHours:            diff.Hours(),
				LastReportTimestamp: last.Timestamp,
				LastReport:          &last,
			})
		}
	}

	reverseGaps(gaps)

	d.logger.WithField("positions", len(positions)).
		WithField("gaps", len(gaps)).
		WithField("threshold_hours", d.threshold.Hours()).
		Debug("AIS gaps detected")

	return gaps
}

// AnnotateGapPorts определяет порты границ разрывов двумя пакетными вызовами:
// сначала все текущие отчеты, затем все последние
func AnnotateGapPorts(ctx context.Context, gaps []models.AISGap, resolver PortResolver) error {
	if len(gaps) == 0 || resolver == nil {
		return nil
	}

	var currentIdx []int
	var currentPositions []models.Position
	var lastIdx []int
	var lastPositions []models.Position

	for i := range gaps {
		if gaps[i].CurrentReport != nil {
			currentIdx = append(currentIdx, i)
			currentPositions = append(currentPositions, *gaps[i].CurrentReport)
		}
		if gaps[i].LastReport != nil {
			lastIdx = append(lastIdx, i)
			lastPositions = append(lastPositions, *gaps[i].LastReport)
		}
	}

	if len(currentPositions) > 0 {
		ports, err := resolver.ResolvePorts(ctx, currentPositions)
		if err != nil {
			return fmt.Errorf("failed to resolve current report ports: %w", err)
		}
		for j, i := range currentIdx {
			if j < len(ports) {
				port := ports[j]
				gaps[i].CurrentPort = &port
			}
		}
	}

	if len(lastPositions) > 0 {
		ports, err := resolver.ResolvePorts(ctx, lastPositions)
		if err != nil {
			return fmt.Errorf("failed to resolve last report ports: %w", err)
		}
		for j, i := range lastIdx {
			if j < len(ports) {
				port := ports[j]
				gaps[i].LastPort = &port
			}
		}
	}

	return nil
}

func reverseGaps(gaps []models.AISGap) {
	for i, j := 0, len(gaps)-1; i < j; i, j = i+1, j-1 {
		gaps[i], gaps[j] = gaps[j], gaps[i]
	}
}
