package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/blob"
	"storyline/internal/db"
	"storyline/internal/engine"
	"storyline/internal/genclient"
	"storyline/internal/metrics"
	"storyline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	m := metrics.New(prometheus.NewRegistry())
	e := engine.New(conn, genclient.New(genclient.Config{}, genclient.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))))
	e.Designs = blob.NewMemStore()
	e.Metrics = m

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true},
		Metrics:  m,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, Engine: e}
}

var asAlice = map[string]string{"X-Actor-Id": "alice"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func (s *testServer) createStory(t *testing.T, title, description string) StoryResponse {
	t.Helper()
	res, data := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/stories", map[string]any{
		"title":       title,
		"description": description,
	}, asAlice)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[StoryResponse](t, data)
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories", nil, map[string]string{"X-Api-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decode[errorEnvelope](t, data).Error.Code)
}

func TestDevLoginAndAPIKey(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "bob"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	token := decode[DevLoginResponse](t, data).Token
	require.NotEmpty(t, token)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, MeResponse{ActorID: "bob", Source: "jwt"}, decode[MeResponse](t, data))

	_, raw, err := srv.Engine.CreateAPIKey(context.Background(), "carol", "ci")
	require.NoError(t, err)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": raw})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, MeResponse{ActorID: "carol", Source: "api_key"}, decode[MeResponse](t, data))
}

func TestStoryTransitionGeneratesSpecification(t *testing.T) {
	srv := newTestServer(t)
	created := srv.createStory(t, "PROJ-12 - Login", "User opens the app. User enters credentials. User sees the dashboard.")
	assert.Equal(t, "DRAFT", string(created.Status))
	assert.Nil(t, created.SpecificationText)
	assert.Equal(t, "alice", created.CreatorID)

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/stories/"+created.ID+"/status", map[string]any{
		"status": "READY_FOR_REFINEMENT",
	}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	moved := decode[StoryResponse](t, data)
	assert.Equal(t, "READY_FOR_REFINEMENT", string(moved.Status))
	require.NotNil(t, moved.SpecificationText)
	assert.True(t, strings.HasPrefix(*moved.SpecificationText, "Feature: PROJ-12 - Login\n\n  Scenario: Login\n"), *moved.SpecificationText)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?entity_id="+created.ID, nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evts := decode[paginatedEvents](t, data)
	var types []string
	for _, ev := range evts.Items {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, "story.specification.generated")
	assert.Contains(t, types, "story.status.changed")
	assert.Contains(t, types, "story.created")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "transitions_total")
}

func TestStoryErrors(t *testing.T) {
	srv := newTestServer(t)
	created := srv.createStory(t, "Checkout", "Pay for the basket.")

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/stories/"+created.ID+"/status", map[string]any{"status": "SHIPPED"}, asAlice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories/missing", nil, asAlice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/stories", map[string]any{"title": "  ", "description": "x"}, asAlice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/stories/"+created.ID+"/analyze-design", nil, asAlice)
	assert.Equal(t, http.StatusPreconditionFailed, res.StatusCode)
	assert.Equal(t, "precondition_failed", decode[errorEnvelope](t, data).Error.Code)

	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/stories/"+created.ID+"/design", map[string]any{"design_reference": "ftp://example.com/x.png"}, asAlice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestDesignUploadAndAnalysis(t *testing.T) {
	srv := newTestServer(t)
	created := srv.createStory(t, "Profile", "User edits profile.")

	png := []byte("\x89PNG\r\n\x1a\nfake")
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v0/stories/"+created.ID+"/design/upload", bytes.NewReader(png))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("X-Actor-Id", "alice")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	withDesign := decode[StoryResponse](t, data)
	require.NotNil(t, withDesign.DesignReference)
	assert.True(t, strings.HasPrefix(*withDesign.DesignReference, "blob:"))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/stories/"+created.ID+"/analyze-design", nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	analysis := decode[DesignAnalysisResponse](t, data)
	assert.Equal(t, engine.SourceFallback, analysis.Source)
	assert.NotEmpty(t, analysis.GeneratedDescription)
	assert.Equal(t, "User edits profile.", analysis.Story.Description)

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/v0/stories/"+created.ID+"/design/upload", strings.NewReader("plain"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Actor-Id", "alice")
	res, err = srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, res.StatusCode)
}

func TestListStoriesPaginates(t *testing.T) {
	srv := newTestServer(t)
	for _, title := range []string{"One", "Two", "Three"} {
		srv.createStory(t, title, "Something happens.")
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories?limit=2", nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	first := decode[paginatedStories](t, data)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories?limit=2&cursor="+first.NextCursor, nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	second := decode[paginatedStories](t, data)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, s := range append(first.Items, second.Items...) {
		seen[s.ID] = true
	}
	assert.Len(t, seen, 3)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories?keyword=Two", nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	filtered := decode[paginatedStories](t, data)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, "Two", filtered.Items[0].Title)
}

func TestTaskRoutes(t *testing.T) {
	srv := newTestServer(t)
	story := srv.createStory(t, "Search", "User searches.")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/stories/"+story.ID+"/tasks", map[string]any{"title": "Index"}, asAlice)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[TaskResponse](t, data)
	assert.Equal(t, "TODO", string(task.Status))

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+task.ID+"/status", map[string]any{"status": "DEVELOPMENT"}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "DEVELOPMENT", string(decode[TaskResponse](t, data).Status))

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+task.ID+"/assign", map[string]any{"assignee_id": "dave"}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assigned := decode[TaskResponse](t, data)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, "dave", *assigned.AssigneeID)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories/"+story.ID+"/tasks", nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[[]TaskResponse](t, data), 1)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+task.ID, nil, asAlice)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/stories/"+story.ID, nil, asAlice)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stories/"+story.ID+"/tasks", nil, asAlice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDashboardSummary(t *testing.T) {
	srv := newTestServer(t)
	first := srv.createStory(t, "A", "Does a.")
	srv.createStory(t, "B", "Does b.")
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/stories/"+first.ID+"/status", map[string]any{"status": "READY_FOR_REFINEMENT"}, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/dashboard/summary", nil, asAlice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var summary struct {
		Buckets  map[string]int `json:"buckets"`
		Coverage struct {
			WithSpecification  int     `json:"with_specification"`
			TotalStories       int     `json:"total_stories"`
			CoveragePercentage float64 `json:"coverage_percentage"`
		} `json:"specification_coverage"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary.Coverage.WithSpecification)
	assert.Equal(t, 2, summary.Coverage.TotalStories)
	assert.InDelta(t, 50.0, summary.Coverage.CoveragePercentage, 0.01)
	assert.Equal(t, 2, summary.Buckets[engine.BucketBacklog])
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	doc := string(data)
	assert.Contains(t, doc, "bearerAuth")
	assert.Contains(t, doc, "/v0/stories/{id}/analyze-design")
}
