package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// AISClient клиент сервиса позиций AIS
type AISClient struct {
	base *baseClient
}

// NewAISClient создает клиент AIS
func NewAISClient(opts Options, logger *utils.Logger) (*AISClient, error) {
	base, err := newBaseClient("ais", opts, logger)
	if err != nil {
		return nil, err
	}
	return &AISClient{base: base}, nil
}

// aisPosition отчет AIS в формате сервиса
type aisPosition struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Course    *float64  `json:"course"`
	Status    string    `json:"status"`
	Source    string    `json:"source"` // T - береговая станция, S - спутник
}

func (p aisPosition) toModel() models.Position {
	source := models.SourceAISTerrestrial
	if p.Source == "S" || p.Source == "satellite" {
		source = models.SourceAISSatellite
	}
	return models.Position{
		Timestamp: p.Timestamp.UTC(),
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.Speed,
		Heading:   p.Heading,
		Course:    p.Course,
		Status:    p.Status,
		Source:    source,
	}
}

// GetTrack возвращает позиции судна начиная с since
//
// count ограничивает число позиций (0 - без ограничения),
// downsampleSeconds прореживает трек на стороне сервиса.
func (c *AISClient) GetTrack(ctx context.Context, mmsi int, since time.Time, count, downsampleSeconds int) ([]models.Position, error) {
	query := url.Values{}
	query.Set("mmsi", strconv.Itoa(mmsi))
	query.Set("since", since.UTC().Format(time.RFC3339))
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}
	if downsampleSeconds > 0 {
		query.Set("downsample", strconv.Itoa(downsampleSeconds))
	}

	var resp struct {
		Positions []aisPosition `json:"positions"`
	}
	if err := c.base.getJSON(ctx, "get_track", "/track", query, &resp); err != nil {
		return nil, fmt.Errorf("get track for MMSI %d: %w", mmsi, err)
	}

	positions := make([]models.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		positions = append(positions, p.toModel())
	}

	c.base.logger.WithField("mmsi", mmsi).
		WithField("since", since).
		WithField("positions", len(positions)).
		Debug("AIS track fetched")

	return positions, nil
}

// GetStatus текущее состояние судна (последняя позиция, название, флаг)
func (c *AISClient) GetStatus(ctx context.Context, mmsi int) (map[string]interface{}, error) {
	query := url.Values{}
	query.Set("mmsi", strconv.Itoa(mmsi))

	var status map[string]interface{}
	if err := c.base.getJSON(ctx, "get_status", "/status", query, &status); err != nil {
		return nil, fmt.Errorf("get status for MMSI %d: %w", mmsi, err)
	}
	return status, nil
}

// GetStaticAndVoyage статические и рейсовые данные (осадка, пункт назначения)
func (c *AISClient) GetStaticAndVoyage(ctx context.Context, mmsi int) (map[string]interface{}, error) {
	query := url.Values{}
	query.Set("mmsi", strconv.Itoa(mmsi))

	var data map[string]interface{}
	if err := c.base.getJSON(ctx, "get_static_and_voyage", "/static-voyage", query, &data); err != nil {
		return nil, fmt.Errorf("get static and voyage for MMSI %d: %w", mmsi, err)
	}
	return data, nil
}

// GetMMSIFromIMO ищет MMSI по номеру IMO
func (c *AISClient) GetMMSIFromIMO(ctx context.Context, imo int) (int, error) {
	query := url.Values{}
	query.Set("imo", strconv.Itoa(imo))

	var resp struct {
		MMSI int `json:"mmsi"`
	}
	if err := c.base.getJSON(ctx, "get_mmsi_from_imo", "/mmsi", query, &resp); err != nil {
		return 0, fmt.Errorf("get MMSI for IMO %d: %w", imo, err)
	}
	if resp.MMSI == 0 {
		return 0, fmt.Errorf("get MMSI for IMO %d: %w", imo, ErrNotFound)
	}
	return resp.MMSI, nil
}
