package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shipscreen/smh-service/internal/geo"
	"github.com/shipscreen/smh-service/internal/metrics"
)

// LoadRegions читает полигоны регионов из таблицы table
//
// Ожидаемые колонки: id, <field> (название), country, status, geometry (spatial).
// Пустой status загружает все регионы.
func (s *MySQLStore) LoadRegions(ctx context.Context, table, field, status string) ([]geo.RegionShape, error) {
	if err := geo.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := geo.ValidateIdentifier(field); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.MySQLOperationDuration.WithLabelValues("load_regions").Observe(time.Since(start).Seconds())
	}()

	query := fmt.Sprintf(`
		SELECT id, COALESCE(%s, ''), COALESCE(country, ''), COALESCE(status, ''), ST_AsGeoJSON(geometry)
		FROM %s
	`, field, table)
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.MySQLOperationErrors.WithLabelValues("load_regions").Inc()
		return nil, fmt.Errorf("failed to query regions from %s: %w", table, err)
	}
	defer rows.Close()

	var shapes []geo.RegionShape
	for rows.Next() {
		var (
			id    int64
			shape geo.RegionShape
		)
		if err := rows.Scan(&id, &shape.Name, &shape.Country, &shape.Status, &shape.Geometry); err != nil {
			s.logger.WithField("table", table).WithField("error", err).Warn("Failed to scan region row")
			continue
		}
		shape.ID = strconv.FormatInt(id, 10)
		shapes = append(shapes, shape)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating region rows: %w", err)
	}

	s.logger.WithField("table", table).WithField("count", len(shapes)).Info("Loaded regions from MySQL")
	return shapes, nil
}
