package client

import (
	"context"
	"fmt"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// DefaultPortBatchSize максимальное число координат в одном запросе
const DefaultPortBatchSize = 500

// PortClient клиент сервиса поиска портов по координатам
type PortClient struct {
	base      *baseClient
	batchSize int
}

// NewPortClient создает клиент сервиса портов
func NewPortClient(opts Options, batchSize int, logger *utils.Logger) (*PortClient, error) {
	base, err := newBaseClient("ports", opts, logger)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultPortBatchSize
	}
	return &PortClient{base: base, batchSize: batchSize}, nil
}

type portLookupPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

type portLookupRequest struct {
	Positions []portLookupPoint `json:"positions"`
}

type portLookupResponse struct {
	Ports []models.Port `json:"ports"`
}

// GetPorts возвращает порт для каждой позиции (1:1, порядок сохраняется)
//
// Пустой код или "0" означает, что позиция вне порта.
func (c *PortClient) GetPorts(ctx context.Context, positions []models.Position) ([]models.Port, error) {
	ports := make([]models.Port, 0, len(positions))

	for start := 0; start < len(positions); start += c.batchSize {
		end := start + c.batchSize
		if end > len(positions) {
			end = len(positions)
		}

		req := portLookupRequest{Positions: make([]portLookupPoint, 0, end-start)}
		for _, p := range positions[start:end] {
			req.Positions = append(req.Positions, portLookupPoint{Latitude: p.Latitude, Longitude: p.Longitude})
		}

		var resp portLookupResponse
		if err := c.base.postJSON(ctx, "get_ports", "/ports/lookup", req, &resp); err != nil {
			return nil, fmt.Errorf("port lookup batch %d-%d: %w", start, end, err)
		}
		if len(resp.Ports) != end-start {
			return nil, fmt.Errorf("port lookup batch %d-%d: expected %d ports, got %d",
				start, end, end-start, len(resp.Ports))
		}
		ports = append(ports, resp.Ports...)
	}

	c.base.logger.WithField("positions", len(positions)).
		WithField("batch_size", c.batchSize).
		Debug("Ports resolved")

	return ports, nil
}

// ResolvePorts то же, что GetPorts; реализует интерфейс резолвера портов
func (c *PortClient) ResolvePorts(ctx context.Context, positions []models.Position) ([]models.Port, error) {
	return c.GetPorts(ctx, positions)
}
