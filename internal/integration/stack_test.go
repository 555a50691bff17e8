package integration

import (
	"encoding/json"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shipscreen/smh-service/internal/client"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/geo"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/internal/repository"
	"github.com/shipscreen/smh-service/internal/service"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
	"github.com/stretchr/testify/require"
)

const (
	aisURL   = "https://ais.example.test"
	sisURL   = "https://sis.example.test"
	portsURL = "https://ports.example.test"

	vesselIMO  = 9074729
	vesselMMSI = 431000000
	unknownIMO = 9176187
)

var portZones = map[string]models.GeoPoint{
	"JPNGO": {Latitude: 35.0, Longitude: 136.8},
	"JPOSA": {Latitude: 34.6, Longitude: 135.4},
}

type trackPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Speed     float64   `json:"speed"`
	Source    string    `json:"source"`
}

// voyage стоянка в Нагое, переход, стоянка в Осаке; последняя позиция в end
func voyage(end time.Time) []trackPoint {
	const step = 10 * time.Minute
	var points []trackPoint
	add := func(lat, lon, speed float64) {
		points = append(points, trackPoint{Latitude: lat, Longitude: lon, Speed: speed, Source: "T"})
	}
	for i := 0; i < 60; i++ {
		add(35.0, 136.8, 0.1)
	}
	for i := 1; i <= 36; i++ {
		add(35.0-0.4*float64(i)/36, 136.8-1.4*float64(i)/36, 12)
	}
	for i := 0; i < 60; i++ {
		add(34.6, 135.4, 0.1)
	}
	start := end.Add(-time.Duration(len(points)-1) * step)
	for i := range points {
		points[i].Timestamp = start.Add(time.Duration(i) * step)
	}
	return points
}

func registerResponders(transport *httpmock.MockTransport, track []trackPoint) {
	transport.RegisterResponder(http.MethodGet, aisURL+"/track",
		func(req *http.Request) (*http.Response, error) {
			since, err := time.Parse(time.RFC3339, req.URL.Query().Get("since"))
			if err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad since"), nil
			}
			points := make([]trackPoint, 0)
			if req.URL.Query().Get("mmsi") == "431000000" {
				for _, p := range track {
					if !p.Timestamp.Before(since) {
						points = append(points, p)
					}
				}
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"positions": points})
		})
	transport.RegisterResponder(http.MethodGet, aisURL+"/status",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"mmsi": vesselMMSI,
			"name": "SAKURA MARU",
			"flag": "JP",
		}))
	transport.RegisterResponder(http.MethodGet, aisURL+"/static-voyage",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"destination": "JPOSA",
			"draught":     7.2,
		}))
	transport.RegisterResponder(http.MethodGet, aisURL+"/mmsi",
		func(req *http.Request) (*http.Response, error) {
			mmsi := 0
			if req.URL.Query().Get("imo") == "9074729" {
				mmsi = vesselMMSI
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]int{"mmsi": mmsi})
		})

	transport.RegisterResponder(http.MethodGet, sisURL+"/ship-movement-history",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"count":   0,
			"results": []interface{}{},
		}))
	transport.RegisterResponder(http.MethodGet, sisURL+"/ships/9074729",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, client.Ship{IMO: vesselIMO, MMSI: vesselMMSI, Name: "SAKURA MARU"}))
	transport.RegisterResponder(http.MethodGet, sisURL+"/ships/9074729/mmsi-history",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"results": []interface{}{}}))
	transport.RegisterResponder(http.MethodGet, sisURL+"/ships/9176187",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"not found"}`))
	transport.RegisterResponder(http.MethodGet, sisURL+"/ships/9176187/mmsi-history",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"not found"}`))

	transport.RegisterResponder(http.MethodPost, portsURL+"/ports/lookup",
		func(req *http.Request) (*http.Response, error) {
			var body struct {
				Positions []struct {
					Lat float64 `json:"lat"`
					Lon float64 `json:"lon"`
				} `json:"positions"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			ports := make([]models.Port, len(body.Positions))
			for i, p := range body.Positions {
				ports[i] = models.Port{PortCode: models.NoPortCode}
				for code, c := range portZones {
					if math.Abs(p.Lat-c.Latitude) < 0.05 && math.Abs(p.Lon-c.Longitude) < 0.05 {
						ports[i] = models.Port{PortCode: code, PortName: code, PortLatitude: c.Latitude, PortLongitude: c.Longitude}
					}
				}
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"ports": ports})
		})
}

// stack сервис SMH целиком, внешние HTTP-сервисы на httpmock
type stack struct {
	cfg       *config.Config
	logger    *utils.Logger
	transport *httpmock.MockTransport
	store     *repository.MemoryStore
	resolver  *service.ResilientPortResolver
	portCache *geo.PortCache
	task      *service.Task
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st := &stack{
		logger:    utils.NewLogger("error", "text"),
		transport: httpmock.NewMockTransport(),
		store:     repository.NewMemoryStore(),
	}
	registerResponders(st.transport, voyage(time.Now().UTC().Add(-time.Hour)))
	httpClient := &http.Client{Transport: st.transport}

	aisClient, err := client.NewAISClient(client.Options{BaseURL: aisURL, HTTPClient: httpClient}, st.logger)
	require.NoError(t, err)
	sisClient, err := client.NewSISClient(client.Options{BaseURL: sisURL, HTTPClient: httpClient}, 100, st.logger)
	require.NoError(t, err)
	portClient, err := client.NewPortClient(client.Options{BaseURL: portsURL, HTTPClient: httpClient}, 50, st.logger)
	require.NoError(t, err)

	st.cfg = &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Address: ":0", RequestTimeout: 10 * time.Second},
		SMH: config.SMHConfig{
			Rates:              []int{10, 60},
			TrackRateThreshold: 60,
			DefaultAISDays:     30,
			DefaultAISRate:     60,
			SpeedFilter:        1.5,
			AISGapHours:        24,
			AISGapRate:         10,
			StopSpeed:          1,
			MaxPlausibleSpeed:  60,
			CacheFreshness:     10 * time.Minute,
		},
	}

	st.resolver = service.NewResilientPortResolver(portClient, 1, time.Millisecond, st.logger)
	st.portCache = geo.NewPortCache(st.resolver, 1000, time.Hour, 5, st.logger)
	computer := smh.NewComputer(st.portCache, nil, st.logger)
	st.task = service.NewTask(aisClient, sisClient, computer, st.store, st.cfg.SMH.CacheFreshness, st.logger)
	return st
}
