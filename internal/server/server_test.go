package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/internal/queue"
	mid "github.com/OFFIS-RIT/graphsync/internal/server/middleware"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/graph"
	"github.com/OFFIS-RIT/graphsync/pkg/store/memory"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.SyncMessage
}

func (q *recordingQueue) Publish(_, _ string, _, _ bool, msg amqp091.Publishing) error {
	var m queue.SyncMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, m)
	return nil
}

type testServer struct {
	handler  http.Handler
	statuses *consistency.MemoryStatusStore
	opener   *memory.Opener
	queue    *recordingQueue
}

func newTestServer() testServer {
	ts := testServer{
		statuses: consistency.NewMemoryStatusStore(),
		opener:   memory.NewOpener(),
		queue:    &recordingQueue{},
	}
	ts.handler = New(&mid.App{Statuses: ts.statuses, Stores: ts.opener, Queue: ts.queue})
	return ts
}

func (ts testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := newTestServer().do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGetGraphs(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(http.MethodGet, "/api/graphs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, ts.statuses.SetInitialized(context.Background(), "papers", true))
	rec = ts.do(http.MethodGet, "/api/graphs", "")
	var graphs []consistency.GraphState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graphs))
	require.Len(t, graphs, 1)
	assert.Equal(t, "papers", graphs[0].Graph)
	assert.True(t, graphs[0].Initialized)
}

func TestConsistencyStatus_RequestsStart(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(http.MethodGet, "/api/graphs/papers/consistency_status", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "start requested")

	require.Len(t, ts.queue.msgs, 1)
	assert.Equal(t, queue.SyncMessage{Graph: "papers", Action: queue.ActionStart}, ts.queue.msgs[0])
}

func TestConsistencyStatus_ReturnsStatus(t *testing.T) {
	ts := newTestServer()
	ctx := context.Background()
	require.NoError(t, ts.statuses.SetInitialized(ctx, "papers", true))
	require.NoError(t, ts.statuses.SaveRun(ctx, graph.ReportData{
		RequestID: "run1", Graph: "papers", Kind: consistency.KindSync,
		Status: graph.StatusSucceeded, StartedAt: time.Now(),
	}))
	stores, err := ts.opener.Open(ctx, "papers")
	require.NoError(t, err)
	require.NoError(t, stores.Graph.UpsertVertex(ctx, common.VertexDocument, "doc1", nil))

	rec := ts.do(http.MethodGet, "/api/graphs/papers/consistency_status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st consistency.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Initialized)
	require.NotNil(t, st.LastSync)
	assert.Equal(t, "run1", st.LastSync.RequestID)
	assert.Equal(t, int64(1), st.Vertices[0].Unprocessed)
	assert.Empty(t, ts.queue.msgs)
}

func TestPostSync(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/graphs/papers/sync", `{"action":"cleanup"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ts.queue.msgs, 1)
	assert.Equal(t, queue.ActionCleanup, ts.queue.msgs[0].Action)
	assert.Equal(t, "papers", ts.queue.msgs[0].Graph)
	assert.NotEmpty(t, ts.queue.msgs[0].CorrelationID)

	rec = ts.do(http.MethodPost, "/api/graphs/papers/sync", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPost, "/api/graphs/papers/sync", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ts.queue.msgs, 1)
}

func TestGetRun(t *testing.T) {
	ts := newTestServer()
	require.NoError(t, ts.statuses.SaveRun(context.Background(), graph.ReportData{
		RequestID: "abc", Graph: "papers", Kind: consistency.KindCleanup, Status: graph.StatusRunning,
	}))

	rec := ts.do(http.MethodGet, "/api/graphs/papers/runs/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run graph.ReportData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, consistency.KindCleanup, run.Kind)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/graphs/other/runs/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/graphs/papers/runs/missing", "").Code)
}

func TestGetRun_ByCorrelationID(t *testing.T) {
	ts := newTestServer()
	ctx := context.Background()
	started := time.Now().UTC()
	require.NoError(t, ts.statuses.SaveRun(ctx, graph.ReportData{
		RequestID: "first", CorrelationIDs: []string{"corr"}, Graph: "papers", Kind: consistency.KindSync, StartedAt: started,
	}))
	require.NoError(t, ts.statuses.SaveRun(ctx, graph.ReportData{
		RequestID: "second", CorrelationIDs: []string{"corr"}, Graph: "papers", Kind: consistency.KindSync, StartedAt: started.Add(time.Second),
	}))

	rec := ts.do(http.MethodGet, "/api/graphs/papers/runs/corr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run graph.ReportData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "second", run.RequestID)
	assert.Equal(t, []string{"corr"}, run.CorrelationIDs)
}
