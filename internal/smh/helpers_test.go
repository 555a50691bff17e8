package smh

import (
	"context"
	"math"
	"time"

	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/stretchr/testify/mock"
)

const testIMO = 9074729

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(hours float64) time.Time {
	return t0.Add(time.Duration(hours * float64(time.Hour)))
}

func pos(hours, lat, lon float64, speed float64) models.Position {
	return models.Position{
		Timestamp: at(hours),
		Latitude:  lat,
		Longitude: lon,
		Speed:     models.Float64(speed),
		Source:    models.SourceAISSatellite,
	}
}

func withPort(p models.Position, code string) models.Position {
	p.Port = &models.Port{PortCode: code, PortName: code}
	return p
}

func testSMHConfig() config.SMHConfig {
	return config.SMHConfig{
		Rates:              []int{10, 60, 1440},
		TrackRateThreshold: 60,
		DefaultAISDays:     30,
		DefaultAISRate:     60,
		SpeedFilter:        1.5,
		AISGapHours:        24,
		AISGapRate:         10,
		StopSpeed:          1,
		MaxPlausibleSpeed:  60,
		CacheFreshness:     10 * time.Minute,
	}
}

func testRequest(now time.Time) RequestConfig {
	req, err := NewRequestConfig(testIMO, testSMHConfig(), now).Validate()
	if err != nil {
		panic(err)
	}
	return req
}

// zonePortResolver считает портом любую позицию внутри зоны (квадрат по координатам)
type zonePortResolver struct {
	zones map[string]models.GeoPoint
	calls int
}

func (r *zonePortResolver) ResolvePorts(_ context.Context, positions []models.Position) ([]models.Port, error) {
	r.calls++
	ports := make([]models.Port, len(positions))
	for i, p := range positions {
		ports[i] = models.Port{PortCode: models.NoPortCode}
		for code, center := range r.zones {
			if math.Abs(p.Latitude-center.Latitude) < 0.05 && math.Abs(p.Longitude-center.Longitude) < 0.05 {
				ports[i] = models.Port{PortCode: code, PortName: code}
			}
		}
	}
	return ports, nil
}

// mockPortResolver мок для подсчета пакетных вызовов
type mockPortResolver struct {
	mock.Mock
}

func (m *mockPortResolver) ResolvePorts(ctx context.Context, positions []models.Position) ([]models.Port, error) {
	args := m.Called(ctx, positions)
	ports, _ := args.Get(0).([]models.Port)
	return ports, args.Error(1)
}
