package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aisURL  = "https://ais.example.test"
	sisURL  = "https://sis.example.test"
	portURL = "https://ports.example.test"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func TestNewBaseClient_RequiresURL(t *testing.T) {
	_, err := NewAISClient(Options{}, utils.NopLogger())
	assert.Error(t, err)
}

func TestAISClient_GetTrack(t *testing.T) {
	setupHTTPMock(t)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	httpmock.RegisterResponder("GET", `=~^https://ais\.example\.test/track`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "431000000", req.URL.Query().Get("mmsi"))
			assert.Equal(t, "2024-01-01T00:00:00Z", req.URL.Query().Get("since"))
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK, `{
				"positions": [
					{"timestamp": "2024-01-02T10:00:00Z", "lat": 35.0, "lon": 136.8, "speed": 0.2, "status": "Moored", "source": "T"},
					{"timestamp": "2024-01-02T09:00:00Z", "lat": 34.9, "lon": 136.7, "source": "S"}
				]
			}`), nil
		})

	c, err := NewAISClient(Options{BaseURL: aisURL, Token: "secret"}, utils.NopLogger())
	require.NoError(t, err)

	positions, err := c.GetTrack(context.Background(), 431000000, since, 0, 0)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, models.SourceAISTerrestrial, positions[0].Source)
	require.NotNil(t, positions[0].Speed)
	assert.InDelta(t, 0.2, *positions[0].Speed, 1e-9)
	assert.Equal(t, "Moored", positions[0].Status)
	assert.Equal(t, models.SourceAISSatellite, positions[1].Source)
	assert.Nil(t, positions[1].Speed)
}

func TestAISClient_Errors(t *testing.T) {
	setupHTTPMock(t)

	c, err := NewAISClient(Options{BaseURL: aisURL}, utils.NopLogger())
	require.NoError(t, err)

	t.Run("not found", func(t *testing.T) {
		httpmock.RegisterResponder("GET", `=~^https://ais\.example\.test/mmsi`,
			httpmock.NewStringResponder(http.StatusNotFound, `{"detail": "not found"}`))

		_, err := c.GetMMSIFromIMO(context.Background(), 9074729)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("server error is temporary", func(t *testing.T) {
		httpmock.RegisterResponder("GET", `=~^https://ais\.example\.test/status`,
			httpmock.NewStringResponder(http.StatusServiceUnavailable, `upstream down`))

		_, err := c.GetStatus(context.Background(), 431000000)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.True(t, statusErr.Temporary())
	})

	t.Run("invalid json", func(t *testing.T) {
		httpmock.RegisterResponder("GET", `=~^https://ais\.example\.test/static-voyage`,
			httpmock.NewStringResponder(http.StatusOK, `{not json`))

		_, err := c.GetStaticAndVoyage(context.Background(), 431000000)
		assert.Error(t, err)
	})
}

func TestSISClient_ListShipMovementHistory_Paginates(t *testing.T) {
	setupHTTPMock(t)

	pages := map[string]string{
		"0": `{"count": 3, "results": [
			{"id": 1, "port_id": 77, "timestamp": "2019-12-26T21:50:49Z", "sail_date_full": "2019-12-28T06:00:00Z", "port_name": "Nagoya", "country_name": "Japan", "latitude": 35.08, "longitude": 136.88},
			{"id": 2, "timestamp": "2020-01-03T08:00:00Z", "port_name": "Osaka", "latitude": 34.65, "longitude": 135.43}
		]}`,
		"2": `{"count": 3, "results": [
			{"id": 3, "timestamp": "2020-01-10T08:00:00Z", "port_name": "Busan", "latitude": 35.1, "longitude": 129.04}
		]}`,
	}
	httpmock.RegisterResponder("GET", `=~^https://sis\.example\.test/ship-movement-history`,
		func(req *http.Request) (*http.Response, error) {
			body, ok := pages[req.URL.Query().Get("offset")]
			if !ok {
				return httpmock.NewStringResponse(http.StatusBadRequest, `bad offset`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})

	c, err := NewSISClient(Options{BaseURL: sisURL}, 2, utils.NopLogger())
	require.NoError(t, err)

	movements, err := c.ListShipMovementHistory(context.Background(), 9074729, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, movements, 3)

	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, "1", movements[0].IHSID)
	assert.Equal(t, "77", movements[0].IHSPortID)
	require.NotNil(t, movements[0].SailDateFull)
	assert.Equal(t, "Nagoya", movements[0].PortName)
	assert.Empty(t, movements[1].IHSPortID)
}

func TestSISClient_ShipAndMMSIHistory(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", sisURL+"/ships/9074729",
		httpmock.NewStringResponder(http.StatusOK, `{"imo": 9074729, "mmsi": 431000000, "name": "TEST MARU"}`))
	httpmock.RegisterResponder("GET", sisURL+"/ships/9074729/mmsi-history",
		httpmock.NewStringResponder(http.StatusOK, `{"results": [
			{"mmsi": 431000000, "effective_date": "2020-01-01T00:00:00Z"},
			{"mmsi": 355000000, "effective_date": "2010-01-01T00:00:00Z"}
		]}`))

	c, err := NewSISClient(Options{BaseURL: sisURL}, 0, utils.NopLogger())
	require.NoError(t, err)

	ship, err := c.GetShipByIMO(context.Background(), 9074729)
	require.NoError(t, err)
	assert.Equal(t, 431000000, ship.MMSI)
	assert.Equal(t, "TEST MARU", ship.Name)

	history, err := c.ListMMSIHistory(context.Background(), 9074729)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 355000000, history[1].MMSI)
}

func TestPortClient_GetPorts_Batches(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("POST", portURL+"/ports/lookup",
		func(req *http.Request) (*http.Response, error) {
			var body portLookupRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			resp := portLookupResponse{}
			for _, p := range body.Positions {
				code := models.NoPortCode
				if p.Latitude > 30 {
					code = "JPNGO"
				}
				resp.Ports = append(resp.Ports, models.Port{PortCode: code})
			}
			return httpmock.NewJsonResponse(http.StatusOK, resp)
		})

	c, err := NewPortClient(Options{BaseURL: portURL}, 2, utils.NopLogger())
	require.NoError(t, err)

	positions := []models.Position{
		{Latitude: 35, Longitude: 136.8},
		{Latitude: 10, Longitude: 10},
		{Latitude: 35, Longitude: 136.8},
	}
	ports, err := c.GetPorts(context.Background(), positions)
	require.NoError(t, err)
	require.Len(t, ports, 3)

	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.True(t, ports[0].HasPort())
	assert.False(t, ports[1].HasPort())
	assert.True(t, ports[2].HasPort())
}

func TestPortClient_GetPorts_CountMismatch(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("POST", portURL+"/ports/lookup",
		httpmock.NewStringResponder(http.StatusOK, `{"ports": [{"port_code": "JPNGO"}]}`))

	c, err := NewPortClient(Options{BaseURL: portURL}, 10, utils.NopLogger())
	require.NoError(t, err)

	_, err = c.ResolvePorts(context.Background(), []models.Position{{Latitude: 1}, {Latitude: 2}})
	assert.Error(t, err)
}
