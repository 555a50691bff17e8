package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// ErrInvalidIdentifier имя таблицы или колонки не прошло проверку
var ErrInvalidIdentifier = errors.New("invalid SQL identifier")

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// ValidateIdentifier проверяет имя таблицы/колонки перед подстановкой в SQL
func ValidateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// RegionShape регион в том виде, как он хранится в таблице
type RegionShape struct {
	ID       string
	Name     string
	Country  string
	Status   string
	Geometry []byte // GeoJSON Polygon или MultiPolygon
}

// RegionLoader загружает регионы из таблицы
type RegionLoader interface {
	LoadRegions(ctx context.Context, table, field, status string) ([]RegionShape, error)
}

// region регион, подготовленный для проверки вхождения точки
type region struct {
	port    models.Port
	polygon *s2.Polygon
	bound   s2.Rect
}

// regionSet регионы одной таблицы
type regionSet struct {
	regions  []region
	loadedAt time.Time
}

// RegionIndex определяет регион (EEZ и т.п.) для позиций
//
// Таблицы загружаются лениво при первом обращении и перечитываются по истечении ttl.
type RegionIndex struct {
	loader RegionLoader
	ttl    time.Duration
	logger *utils.Logger

	mu   sync.RWMutex
	sets map[string]*regionSet
	now  func() time.Time
}

// NewRegionIndex создает индекс регионов
func NewRegionIndex(loader RegionLoader, ttl time.Duration, logger *utils.Logger) *RegionIndex {
	return &RegionIndex{
		loader: loader,
		ttl:    ttl,
		logger: logger,
		sets:   make(map[string]*regionSet),
		now:    time.Now,
	}
}

// ResolveRegions возвращает регион для каждой позиции (1:1)
//
// Позиция вне всех регионов получает порт с кодом "0".
func (ri *RegionIndex) ResolveRegions(ctx context.Context, table, field, status string, positions []models.Position) ([]models.Port, error) {
	set, err := ri.regionSet(ctx, table, field, status)
	if err != nil {
		return nil, err
	}

	ports := make([]models.Port, len(positions))
	matched := 0
	for i, p := range positions {
		ports[i] = models.Port{PortCode: models.NoPortCode}

		ll := s2.LatLngFromDegrees(p.Latitude, p.Longitude)
		point := s2.PointFromLatLng(ll)
		for _, r := range set.regions {
			if !r.bound.ContainsLatLng(ll) {
				continue
			}
			if r.polygon.ContainsPoint(point) {
				ports[i] = r.port
				matched++
				break
			}
		}
	}

	ri.logger.WithFields(map[string]interface{}{
		"table":     table,
		"positions": len(positions),
		"matched":   matched,
	}).Debug("Regions resolved")

	return ports, nil
}

// Invalidate сбрасывает загруженные таблицы
func (ri *RegionIndex) Invalidate() {
	ri.mu.Lock()
	ri.sets = make(map[string]*regionSet)
	ri.mu.Unlock()
}

func (ri *RegionIndex) regionSet(ctx context.Context, table, field, status string) (*regionSet, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(field); err != nil {
		return nil, err
	}

	key := table + "|" + field + "|" + status

	ri.mu.RLock()
	set, ok := ri.sets[key]
	ri.mu.RUnlock()
	if ok && (ri.ttl <= 0 || ri.now().Sub(set.loadedAt) < ri.ttl) {
		return set, nil
	}

	shapes, err := ri.loader.LoadRegions(ctx, table, field, status)
	if err != nil {
		return nil, fmt.Errorf("failed to load regions from %s: %w", table, err)
	}

	set = &regionSet{regions: make([]region, 0, len(shapes)), loadedAt: ri.now()}
	for _, shape := range shapes {
		r, err := buildRegion(shape)
		if err != nil {
			ri.logger.WithField("table", table).
				WithField("region_id", shape.ID).
				WithError(err).
				Warn("Skipping region with invalid geometry")
			continue
		}
		set.regions = append(set.regions, r)
	}

	ri.mu.Lock()
	ri.sets[key] = set
	ri.mu.Unlock()

	ri.logger.WithField("table", table).
		WithField("field", field).
		WithField("regions", len(set.regions)).
		Info("Region table loaded")

	return set, nil
}

func buildRegion(shape RegionShape) (region, error) {
	rings, err := ParseGeoJSONRings(shape.Geometry)
	if err != nil {
		return region{}, err
	}

	loops := make([]*s2.Loop, 0, len(rings))
	for _, ring := range rings {
		loops = append(loops, loopFromRing(ring))
	}
	if len(loops) == 0 {
		return region{}, errors.New("geometry has no rings")
	}

	// точка внутри, если она покрыта нечетным числом контуров
	polygon := s2.PolygonFromLoops(loops)
	bound := polygon.RectBound()
	center := bound.Center()

	return region{
		port: models.Port{
			PortCode:        shape.ID,
			PortName:        shape.Name,
			PortCountryName: shape.Country,
			PortLatitude:    center.Lat.Degrees(),
			PortLongitude:   center.Lng.Degrees(),
		},
		polygon: polygon,
		bound:   bound,
	}, nil
}

func loopFromRing(ring []models.GeoPoint) *s2.Loop {
	// замыкающая вершина в s2 не нужна
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	points := make([]s2.Point, 0, len(ring))
	for _, v := range ring {
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(v.Latitude, v.Longitude)))
	}
	loop := s2.LoopFromPoints(points)
	loop.Normalize()
	return loop
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseGeoJSONRings извлекает контуры из GeoJSON Polygon/MultiPolygon
//
// Координаты GeoJSON идут в порядке [lon, lat].
func ParseGeoJSONRings(data []byte) ([][]models.GeoPoint, error) {
	var geom geoJSONGeometry
	if err := json.Unmarshal(data, &geom); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}

	var polygons [][][][2]float64
	switch geom.Type {
	case "Polygon":
		var poly [][][2]float64
		if err := json.Unmarshal(geom.Coordinates, &poly); err != nil {
			return nil, fmt.Errorf("invalid polygon coordinates: %w", err)
		}
		polygons = append(polygons, poly)
	case "MultiPolygon":
		if err := json.Unmarshal(geom.Coordinates, &polygons); err != nil {
			return nil, fmt.Errorf("invalid multipolygon coordinates: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", geom.Type)
	}

	rings := make([][]models.GeoPoint, 0)
	for _, poly := range polygons {
		for _, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			points := make([]models.GeoPoint, 0, len(ring))
			for _, c := range ring {
				points = append(points, models.GeoPoint{Latitude: c[1], Longitude: c[0]})
			}
			rings = append(rings, points)
		}
	}
	return rings, nil
}
