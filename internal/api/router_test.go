package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/territory-studio/engine/internal/api/handlers"
	"github.com/territory-studio/engine/internal/api/types"
	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/internal/queue/tasks"
	"github.com/territory-studio/engine/internal/services"
	"github.com/territory-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *types.APIError `json:"error"`
	Meta    *types.Meta     `json:"meta"`
}

type testServer struct {
	t      *testing.T
	ws     *services.Workspace
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newQueuedTestServer(t, nil)
}

func newQueuedTestServer(t *testing.T, queue tasks.Enqueuer) *testServer {
	t.Helper()
	ws := services.NewWorkspace(nil, nil, services.Options{})
	router := NewRouter(Dependencies{
		RegionsHandler:     handlers.NewRegionsHandler(ws, queue, 2),
		TerritoriesHandler: handlers.NewTerritoriesHandler(ws),
		GroupsHandler:      handlers.NewGroupsHandler(ws),
		DocumentHandler:    handlers.NewDocumentHandler(ws, nil),
		EventsHandler:      handlers.NewEventsHandler(ws.Bus()),
	})
	return &testServer{t: t, ws: ws, router: router}
}

func (s *testServer) do(method, path, body string, out any) (int, *envelope) {
	s.t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code == http.StatusNoContent {
		return rr.Code, nil
	}
	var env envelope
	require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(s.t, json.Unmarshal(env.Data, out))
	}
	return rr.Code, &env
}

const squareBody = `{"polygon": [{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":10},{"x":0,"y":10}]}`

func TestRegionAssignmentFlow(t *testing.T) {
	s := newTestServer(t)

	var region models.Region
	code, _ := s.do(http.MethodPost, "/api/v1/regions", squareBody, &region)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, 1, region.RegionID)
	require.Equal(t, 100.0, region.Area)

	var group models.Group
	code, _ = s.do(http.MethodPost, "/api/v1/groups", `{"name":"North","color":"#ff0000"}`, &group)
	require.Equal(t, http.StatusCreated, code)

	var territory models.Territory
	code, _ = s.do(http.MethodPost, "/api/v1/territories", `{"number":"12","groupId":1}`, &territory)
	require.Equal(t, http.StatusCreated, code)
	require.False(t, territory.Placed())

	code, _ = s.do(http.MethodPut, "/api/v1/regions/1/assignment", `{"territoryId":1}`, &territory)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, territory.Polygon, 4)

	var view handlers.RegionView
	code, _ = s.do(http.MethodGet, "/api/v1/regions/hit?x=5&y=5", "", &view)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "12", view.Label)
	require.Equal(t, "#ff0000", view.Color)
	require.True(t, view.Assigned)

	code, env := s.do(http.MethodGet, "/api/v1/regions/hit?x=500&y=5", "", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "not_found", env.Error.Code)

	var stats services.Stats
	s.do(http.MethodGet, "/api/v1/stats", "", &stats)
	require.Equal(t, 1, stats.WithPolygons)
	require.Equal(t, 1, stats.ByGroup["North"])

	code, _ = s.do(http.MethodDelete, "/api/v1/regions/1/assignment", "", nil)
	require.Equal(t, http.StatusNoContent, code)
	var unplaced []models.Territory
	s.do(http.MethodGet, "/api/v1/territories/unplaced", "", &unplaced)
	require.Len(t, unplaced, 1)
}

func TestAssignmentHistoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodPost, "/api/v1/groups", `{"name":"North","color":"#ff0000"}`, nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(http.MethodPost, "/api/v1/territories", `{"number":"7","groupId":1}`, nil)
	require.Equal(t, http.StatusCreated, code)

	var a models.Assignment
	code, _ = s.do(http.MethodPost, "/api/v1/territories/1/assignments", `{"publisher":"Ann","dateAssigned":"2025-01-05"}`, &a)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, a.Ongoing())

	code, _ = s.do(http.MethodPatch, "/api/v1/territories/1/assignments/"+jsonNumber(a.ID), `{"dateCompleted":"2025-02-01"}`, &a)
	require.Equal(t, http.StatusOK, code)
	require.False(t, a.Ongoing())

	code, _ = s.do(http.MethodDelete, "/api/v1/territories/1/assignments/42", "", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, env := s.do(http.MethodPost, "/api/v1/territories/1/assignments", `{"publisher":"Ann"}`, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "validation", env.Error.Code)
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodGet, "/api/v1/regions/9", "", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, env.Success)
	require.NotEmpty(t, env.Meta.RequestID)

	code, env = s.do(http.MethodPost, "/api/v1/regions", `{"polygon":[{"x":0,"y":0},{"x":1,"y":1}]}`, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_geometry", env.Error.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/regions", `{`, nil)
	require.Equal(t, http.StatusBadRequest, code)

	s.do(http.MethodPost, "/api/v1/groups", `{"name":"North","color":"#ff0000"}`, nil)
	code, env = s.do(http.MethodPost, "/api/v1/groups", `{"name":"north","color":"#00ff00"}`, nil)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "conflict", env.Error.Code)

	code, _ = s.do(http.MethodGet, "/api/v1/regions/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, "/api/v1/document/revisions", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", env.Error.Code)
}

func TestDocumentImportAndExport(t *testing.T) {
	s := newTestServer(t)
	legacy := `[{"id": 3, "number": 21, "group": "East", "polygon": [[0,0],[10,0],[10,10],[0,10]]}]`

	var summary map[string]int
	code, _ := s.do(http.MethodPut, "/api/v1/document", legacy, &summary)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, summary["territories"])
	require.Equal(t, 1, summary["groups"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/document", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc models.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, "21", doc.TerritoryData.Territories[0].Number)
	require.Equal(t, models.DocumentVersion, doc.Version)

	code, _ = s.do(http.MethodPut, "/api/v1/document", `{"foo":1}`, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSimplifyRunsInlineWithoutQueue(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/v1/regions", `{"polygon": [{"x":0,"y":0},{"x":5,"y":0.1},{"x":10,"y":0},{"x":10,"y":10},{"x":0,"y":10}]}`, nil)

	var res map[string]float64
	code, _ := s.do(http.MethodPost, "/api/v1/regions/simplify", `{"epsilon": 1}`, &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1.0, res["changed"])

	r, ok := s.ws.GetRegion(1)
	require.True(t, ok)
	require.Equal(t, 4, r.Vertices)
}

func TestMoveVertexPublishesAndSyncsTerritory(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/v1/regions", squareBody, nil)
	s.do(http.MethodPost, "/api/v1/groups", `{"name":"North","color":"#ff0000"}`, nil)
	s.do(http.MethodPost, "/api/v1/territories", `{"number":"12","groupId":1}`, nil)
	code, _ := s.do(http.MethodPut, "/api/v1/regions/1/assignment", `{"territoryId":1}`, nil)
	require.Equal(t, http.StatusOK, code)

	var kinds []events.Kind
	s.ws.Bus().Subscribe(func(ctx context.Context, ev events.Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})

	var region models.Region
	code, _ = s.do(http.MethodPatch, "/api/v1/regions/1/vertex", `{"vertex":0,"point":{"x":-5,"y":-5}}`, &region)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, -5.0, region.Polygon[0].X)
	require.Equal(t, 150.0, region.Area)
	require.Equal(t, []events.Kind{events.KindRegionUpdated, events.KindUpdate}, kinds)

	tr, ok := s.ws.GetTerritory(1)
	require.True(t, ok)
	require.Equal(t, region.Polygon[0], tr.Polygon[0])

	code, env := s.do(http.MethodPatch, "/api/v1/regions/1/vertex", `{"vertex":9,"point":{"x":0,"y":0}}`, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "validation", env.Error.Code)
	require.Len(t, kinds, 2)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRebuildIndexEnqueuesWhenQueued(t *testing.T) {
	q := &mockQueue{}
	q.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == tasks.TypeRebuildIndex
	})).Return(&asynq.TaskInfo{ID: "task-1"}, nil).Once()
	s := newQueuedTestServer(t, q)

	var res map[string]string
	code, _ := s.do(http.MethodPost, "/api/v1/regions/rebuild-index", "", &res)
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, "task-1", res["taskId"])
	q.AssertExpectations(t)
}

func TestRebuildIndexRunsInlineWithoutQueue(t *testing.T) {
	s := newTestServer(t)
	var res map[string]int
	code, _ := s.do(http.MethodPost, "/api/v1/regions/rebuild-index", "", &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, res["linked"])
}

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
