package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/shipscreen/smh-service/internal/handler"
	"github.com/shipscreen/smh-service/internal/repository"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/stretchr/testify/suite"
)

// APIEndpointsTestSuite прогоняет REST API через настоящие клиенты,
// вычисление SMH и хранилище; внешние сервисы заменены httpmock
type APIEndpointsTestSuite struct {
	suite.Suite
	transport *httpmock.MockTransport
	store     *repository.MemoryStore
	server    *handler.Server
}

func (s *APIEndpointsTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

// SetupTest собирает сервис заново: хранилище, кэш портов и breaker не переживают тест
func (s *APIEndpointsTestSuite) SetupTest() {
	st := newStack(s.T())
	s.transport = st.transport
	s.store = st.store
	s.server = handler.NewServer(st.cfg, handler.Dependencies{
		Runner:    st.task,
		Store:     st.store,
		PortCache: st.portCache,
		Breaker:   st.resolver,
		Version:   "integration",
	}, st.logger)
}

func (s *APIEndpointsTestSuite) get(url string) (*httptest.ResponseRecorder, smh.Response) {
	w := httptest.NewRecorder()
	s.server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	var resp smh.Response
	if w.Code == http.StatusOK {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *APIEndpointsTestSuite) TestSMH_RebuildThenServe() {
	lookup := http.MethodPost + " " + portsURL + "/ports/lookup"

	w, resp := s.get("/api/v1/smh/9074729")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(vesselIMO, resp.Metadata.IMO)
	s.Equal(vesselMMSI, resp.Metadata.MMSI)
	s.Equal(string(smh.DecisionRebuild), resp.Metadata.CacheDecision)
	s.Equal(smh.ReasonNoCache, resp.Metadata.CacheReason)
	s.Require().Len(resp.Visits, 2)
	s.Equal("JPOSA", resp.Visits[0].Port.PortCode)
	s.Equal("JPNGO", resp.Visits[1].Port.PortCode)
	s.Equal(1, s.store.Len())

	lookups := s.transport.GetCallCountInfo()[lookup]
	s.Positive(lookups)

	w, resp = s.get("/api/v1/smh/9074729")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(smh.DecisionServe), resp.Metadata.CacheDecision)
	s.Len(resp.Visits, 2)
	s.Equal(lookups, s.transport.GetCallCountInfo()[lookup], "served entry must not resolve ports again")
	s.Equal(1, s.store.Len())
}

func (s *APIEndpointsTestSuite) TestSMH_LiveSections() {
	mask := smh.ResponseVisits | smh.ResponseTrack | smh.ResponseShipStatus | smh.ResponseStaticAndVoyage
	w, resp := s.get("/api/v1/smh/9074729?use_cache=0&response_type=" + strconv.Itoa(int(mask)))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	s.Equal("SAKURA MARU", resp.Metadata.ShipName)
	s.Equal("JPOSA", resp.StaticAndVoyage["destination"])
	s.Require().NotEmpty(resp.Track)
	s.True(resp.Track[0].Timestamp.After(resp.Track[len(resp.Track)-1].Timestamp), "track is newest first")
	s.Empty(resp.Metadata.Warnings)
}

func (s *APIEndpointsTestSuite) TestSMH_UnknownVessel() {
	w, _ := s.get("/api/v1/smh/" + strconv.Itoa(unknownIMO))
	s.Equal(http.StatusNotFound, w.Code, w.Body.String())

	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("no_track", body["code"])
}

func (s *APIEndpointsTestSuite) TestSMH_PortServiceDown() {
	s.transport.RegisterResponder(http.MethodPost, portsURL+"/ports/lookup",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "maintenance"))

	w, resp := s.get("/api/v1/smh/9074729?use_cache=0")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.NotEmpty(resp.Metadata.Warnings, "port failures degrade to warnings")
}

func (s *APIEndpointsTestSuite) TestSMH_InvalidIMO() {
	w, _ := s.get("/api/v1/smh/9074728")
	s.Equal(http.StatusBadRequest, w.Code)
	s.Zero(s.transport.GetTotalCallCount())
}

func (s *APIEndpointsTestSuite) TestHealth() {
	w := httptest.NewRecorder()
	s.server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Require().Equal(http.StatusOK, w.Code)

	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("integration", body["version"])
	s.Contains(body, "port_cache")
}

func TestAPIEndpointsTestSuite(t *testing.T) {
	suite.Run(t, new(APIEndpointsTestSuite))
}
