package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/graphscape/core"
	"github.com/signalsfoundry/graphscape/graph"
	"github.com/signalsfoundry/graphscape/internal/observability"
	"github.com/signalsfoundry/graphscape/model"
)

// startTestServer builds a store, engine, and server, loads a three-node
// chain, and waits for the first layout snapshot so every endpoint has data.
func startTestServer(t *testing.T, opts ...Option) (*graph.Store, http.Handler) {
	t.Helper()

	store := graph.NewStore(nil)
	eng := core.NewEngine(store, nil,
		core.WithLayoutOptions(core.LayoutOptions{DebounceInterval: time.Millisecond}))

	snaps := make(chan *model.LayoutSnapshot, 64)
	eng.OnSnapshot(func(s *model.LayoutSnapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	eng.Start()
	t.Cleanup(eng.Stop)

	store.Replace(
		[]model.Node{
			{ID: "a", Label: "Alpha", Type: "concept"},
			{ID: "b", Label: "Beta", Type: "concept"},
			{ID: "c", Label: "Gamma", Type: "document"},
		},
		[]model.Edge{
			{ID: "ab", Source: "a", Target: "b", Strength: 0.9},
			{ID: "bc", Source: "b", Target: "c", Strength: 0.8},
		},
	)
	version := store.Version()

	deadline := time.After(15 * time.Second)
	for {
		select {
		case s := <-snaps:
			if s.GraphVersion == version {
				srv := NewServer(store, eng, nil, opts...)
				return store, srv.Handler()
			}
		case <-deadline:
			t.Fatal("no layout snapshot for the loaded graph")
		}
	}
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestServer_Healthz(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestServer_SnapshotHasAllPositions(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/api/v1/snapshot")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap snapshotJSON
	decode(t, rr, &snap)
	assert.Len(t, snap.Positions, 3)
	assert.Contains(t, snap.Positions, "a")
	assert.NotZero(t, snap.Version)
}

func TestServer_SnapshotBeforeFirstPass(t *testing.T) {
	store := graph.NewStore(nil)
	eng := core.NewEngine(store, nil)
	srv := NewServer(store, eng, nil)

	rr := get(t, srv.Handler(), "/api/v1/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServer_ClustersListsChain(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/api/v1/clusters")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Clusters []clusterJSON `json:"clusters"`
	}
	decode(t, rr, &out)
	require.Len(t, out.Clusters, 1)
	assert.Equal(t, []string{"a", "b", "c"}, out.Clusters[0].Members)
	assert.Equal(t, "concept", out.Clusters[0].DominantType)
}

func TestServer_ConnectedRespectsDepth(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/api/v1/nodes/a/connected?depth=1")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		NodeID string     `json:"node_id"`
		Nodes  []nodeJSON `json:"nodes"`
	}
	decode(t, rr, &out)
	assert.Equal(t, "a", out.NodeID)
	require.Len(t, out.Nodes, 1)
	assert.Equal(t, "b", out.Nodes[0].ID)

	rr = get(t, h, "/api/v1/nodes/a/connected?depth=2")
	decode(t, rr, &out)
	assert.Len(t, out.Nodes, 2)
}

func TestServer_ConnectedRejectsBadDepth(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/api/v1/nodes/a/connected?depth=banana")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_PathEndpoint(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/api/v1/path?from=a&to=c")
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Found bool     `json:"found"`
		Path  []string `json:"path"`
	}
	decode(t, rr, &out)
	assert.True(t, out.Found)
	assert.Equal(t, []string{"a", "b", "c"}, out.Path)

	rr = get(t, h, "/api/v1/path?from=a&to=ghost")
	decode(t, rr, &out)
	assert.False(t, out.Found)

	rr = get(t, h, "/api/v1/path?from=a")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_StatsCountsEntities(t *testing.T) {
	_, h := startTestServer(t)

	rr := get(t, h, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var out statsJSON
	decode(t, rr, &out)
	assert.Equal(t, 3, out.Nodes)
	assert.Equal(t, 2, out.Edges)
	assert.Equal(t, 2, out.WorkingEdges)
	assert.Equal(t, 1, out.Clusters)
	assert.NotEmpty(t, out.LayoutState)
	assert.Nil(t, out.Frame)
}

func TestServer_ReplaceGraph(t *testing.T) {
	store, h := startTestServer(t)

	doc := `{
		"nodes": [{"id": "x"}, {"id": "y"}],
		"edges": [{"id": "xy", "source": "x", "target": "y", "strength": 0.5}]
	}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/graph", strings.NewReader(doc)))
	require.Equal(t, http.StatusOK, rr.Code)

	var out replaceGraphJSON
	decode(t, rr, &out)
	assert.Equal(t, 2, out.Nodes)
	assert.Equal(t, 1, out.Edges)

	nodes, edges := store.Counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestServer_ReplaceGraphRejectsBadDocument(t *testing.T) {
	_, h := startTestServer(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/graph", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_MetricsMountAndMiddleware(t *testing.T) {
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	_, h := startTestServer(t,
		WithMetricsHandler(collector.Handler()),
		WithMiddleware(collector.Middleware))

	// Drive one instrumented request, then read it back via /metrics.
	rr := get(t, h, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "graphscape_http_requests_total")
	assert.Contains(t, rr.Body.String(), `route="/api/v1/stats"`)
}
