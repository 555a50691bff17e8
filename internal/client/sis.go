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

// DefaultPageSize размер страницы истории заходов по умолчанию
const DefaultPageSize = 500

// maxPages защита от бесконечной пагинации при некорректном count
const maxPages = 1000

// SISClient клиент реестра судов (IHS/SIS)
type SISClient struct {
	base     *baseClient
	pageSize int
}

// NewSISClient создает клиент SIS
func NewSISClient(opts Options, pageSize int, logger *utils.Logger) (*SISClient, error) {
	base, err := newBaseClient("sis", opts, logger)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SISClient{base: base, pageSize: pageSize}, nil
}

// Ship карточка судна в реестре
type Ship struct {
	IMO  int    `json:"imo"`
	MMSI int    `json:"mmsi"`
	Name string `json:"name"`
	Flag string `json:"flag,omitempty"`
}

// MMSIRecord запись истории MMSI судна
type MMSIRecord struct {
	MMSI          int       `json:"mmsi"`
	EffectiveDate time.Time `json:"effective_date"`
}

type movementRecord struct {
	ID           int64      `json:"id"`
	PortID       int64      `json:"port_id"`
	Timestamp    time.Time  `json:"timestamp"`
	SailDateFull *time.Time `json:"sail_date_full"`
	PortName     string     `json:"port_name"`
	CountryName  string     `json:"country_name"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
}

func (r movementRecord) toModel() models.IHSMovement {
	m := models.IHSMovement{
		IHSID:       strconv.FormatInt(r.ID, 10),
		Timestamp:   r.Timestamp.UTC(),
		PortName:    r.PortName,
		CountryName: r.CountryName,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}
	if r.PortID != 0 {
		m.IHSPortID = strconv.FormatInt(r.PortID, 10)
	}
	if r.SailDateFull != nil {
		sail := r.SailDateFull.UTC()
		m.SailDateFull = &sail
	}
	return m
}

type movementPage struct {
	Count   int              `json:"count"`
	Results []movementRecord `json:"results"`
}

// ListShipMovementHistory выгружает все записи о заходах начиная с since (постранично)
func (c *SISClient) ListShipMovementHistory(ctx context.Context, imo int, since time.Time) ([]models.IHSMovement, error) {
	movements := make([]models.IHSMovement, 0)

	for page, offset := 0, 0; page < maxPages; page++ {
		query := url.Values{}
		query.Set("imo", strconv.Itoa(imo))
		query.Set("timestamp__gte", since.UTC().Format(time.RFC3339))
		query.Set("limit", strconv.Itoa(c.pageSize))
		query.Set("offset", strconv.Itoa(offset))

		var resp movementPage
		if err := c.base.getJSON(ctx, "list_ship_movement_history", "/ship-movement-history", query, &resp); err != nil {
			return nil, fmt.Errorf("list movement history for IMO %d: %w", imo, err)
		}

		for _, r := range resp.Results {
			movements = append(movements, r.toModel())
		}
		offset += len(resp.Results)

		if len(resp.Results) < c.pageSize || (resp.Count > 0 && offset >= resp.Count) {
			break
		}
	}

	c.base.logger.WithField("imo", imo).
		WithField("since", since).
		WithField("movements", len(movements)).
		Debug("IHS movement history fetched")

	return movements, nil
}

// GetShipByIMO карточка судна по IMO
func (c *SISClient) GetShipByIMO(ctx context.Context, imo int) (*Ship, error) {
	var ship Ship
	if err := c.base.getJSON(ctx, "get_ship_by_imo", "/ships/"+strconv.Itoa(imo), nil, &ship); err != nil {
		return nil, fmt.Errorf("get ship by IMO %d: %w", imo, err)
	}
	return &ship, nil
}

// ListMMSIHistory все MMSI, под которыми ходило судно (от новых к старым)
func (c *SISClient) ListMMSIHistory(ctx context.Context, imo int) ([]MMSIRecord, error) {
	var resp struct {
		Results []MMSIRecord `json:"results"`
	}
	if err := c.base.getJSON(ctx, "list_mmsi_history", "/ships/"+strconv.Itoa(imo)+"/mmsi-history", nil, &resp); err != nil {
		return nil, fmt.Errorf("list MMSI history for IMO %d: %w", imo, err)
	}
	return resp.Results, nil
}
