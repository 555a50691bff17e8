package smh

import (
	"testing"
	"time"

	"github.com/shipscreen/smh-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseEntry(req RequestConfig) *models.CacheEntry {
	entry := models.NewCacheEntry(req.IMO)
	entry.Timestamp = req.Now
	entry.CachedDays = 30
	entry.PortVisits[models.RateKey(req.AISRate)] = []models.PortVisit{
		{Port: models.Port{PortCode: "JPNGO"}, Entered: req.Now.Add(-2 * time.Hour)},
		{Port: models.StoppedPort(), Entered: req.Now.Add(-48 * time.Hour), Departed: models.Time(req.Now.Add(-40 * time.Hour))},
		{Port: models.Port{PortCode: "CNSHA"}, Entered: req.Now.Add(-5 * 24 * time.Hour), Departed: models.Time(req.Now.Add(-4 * 24 * time.Hour))},
		{Port: models.Port{PortCode: "JPOSA"}, Entered: req.Now.Add(-20 * 24 * time.Hour), Departed: models.Time(req.Now.Add(-19 * 24 * time.Hour))},
	}
	var positions []models.Position
	for i := 0; i < 100; i++ {
		positions = append(positions, models.Position{Timestamp: req.Now.Add(-time.Duration(i) * 6 * time.Hour), Latitude: 1, Longitude: 1})
	}
	entry.Positions[models.RateKey(req.AISRate)] = positions
	entry.EEZVisits = []models.PortVisit{{Port: models.Port{PortCode: "Japan"}, Entered: req.Now.Add(-3 * time.Hour)}}
	return entry
}

func TestPrepareResponse_StopsRemovedUnlessRequested(t *testing.T) {
	req := testRequest(at(1000))
	entry := responseEntry(req)

	resp := PrepareResponse(entry, req, nil, LiveData{})
	require.Len(t, resp.Visits, 3)
	for _, v := range resp.Visits {
		assert.False(t, v.IsStop())
	}

	req.DetectStops = 2
	resp = PrepareResponse(entry, req, nil, LiveData{})
	assert.Len(t, resp.Visits, 4)
	assert.Len(t, entry.PortVisits[models.RateKey(req.AISRate)], 4, "entry must not be modified")
}

func TestPrepareResponse_PortFilterAndLimit(t *testing.T) {
	req := testRequest(at(1000))
	req.DetectStops = 2
	req.PortFilter = []string{"JP"}
	entry := responseEntry(req)

	resp := PrepareResponse(entry, req, nil, LiveData{})
	require.Len(t, resp.Visits, 3)
	assert.Equal(t, "JPNGO", resp.Visits[0].Port.PortCode)
	assert.True(t, resp.Visits[1].IsStop())
	assert.Equal(t, "JPOSA", resp.Visits[2].Port.PortCode)

	req.PortCountLimit = 1
	resp = PrepareResponse(entry, req, nil, LiveData{})
	require.Len(t, resp.Visits, 1)
	assert.Equal(t, "JPNGO", resp.Visits[0].Port.PortCode)
}

func TestPrepareResponse_RequestDays(t *testing.T) {
	req := testRequest(at(1000))
	req.RequestDays = 7
	req.ResponseType = ResponseVisits | ResponsePositions
	entry := responseEntry(req)

	resp := PrepareResponse(entry, req, nil, LiveData{})

	require.Len(t, resp.Visits, 2)
	assert.Equal(t, "CNSHA", resp.Visits[1].Port.PortCode)
	cutoff := req.Now.Add(-7 * 24 * time.Hour)
	for _, p := range resp.Positions {
		assert.False(t, p.Timestamp.Before(cutoff))
	}
}

func TestPrepareResponse_MaxItemsEvenStride(t *testing.T) {
	req := testRequest(at(1000))
	req.MaxItemsPerObject = 5
	req.ResponseType = ResponsePositions
	entry := responseEntry(req)
	all := entry.Positions[models.RateKey(req.AISRate)]

	resp := PrepareResponse(entry, req, nil, LiveData{})

	require.Len(t, resp.Positions, 5)
	assert.Equal(t, all[0].Timestamp, resp.Positions[0].Timestamp)
	assert.Equal(t, all[len(all)-1].Timestamp, resp.Positions[4].Timestamp, "bounded response still spans the full range")
	assert.Nil(t, resp.Visits)
}

func TestPrepareResponse_Bitmask(t *testing.T) {
	req := testRequest(at(1000))
	req.ResponseType = ResponseGaps | ResponseEEZ | ResponseShipStatus | ResponseStaticAndVoyage
	entry := responseEntry(req)
	live := LiveData{
		ShipStatus:      map[string]interface{}{"name": "EVER GIVEN"},
		StaticAndVoyage: map[string]interface{}{"destination": "NLRTM"},
	}

	report := NewComputationReport(req.Now)
	report.CacheDecision = string(DecisionServe)
	resp := PrepareResponse(entry, req, report, live)

	assert.Nil(t, resp.Visits)
	assert.Nil(t, resp.Positions)
	assert.NotNil(t, resp.AISGaps)
	assert.Len(t, resp.EEZVisits, 1)
	assert.Equal(t, "NLRTM", resp.StaticAndVoyage["destination"])
	assert.NotNil(t, resp.NonPortStops)
	assert.Equal(t, "EVER GIVEN", resp.Metadata.ShipName)
	assert.Equal(t, "serve", resp.Metadata.CacheDecision)
	assert.Contains(t, resp.Metadata.Elapsed, "total")
}

func TestPrepareResponse_EEZJoin(t *testing.T) {
	req := testRequest(at(1000))
	req.EEZJoin = 1
	req.PortFilter = []string{"CN"}
	entry := responseEntry(req)

	resp := PrepareResponse(entry, req, nil, LiveData{})

	require.Len(t, resp.Visits, 2)
	assert.Equal(t, VisitTypeEEZ, resp.Visits[0].Type)
	assert.Equal(t, "CNSHA", resp.Visits[1].Port.PortCode)
}

func TestDownsampleEvenly(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, []int{0, 5, 10}, downsampleEvenly(items, 3))
	assert.Equal(t, []int{0}, downsampleEvenly(items, 1))
	assert.Equal(t, items, downsampleEvenly(items, 20))
}
