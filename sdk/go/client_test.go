package storylinesdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/blob"
	"storyline/internal/db"
	"storyline/internal/engine"
	"storyline/internal/genclient"
	"storyline/internal/migrate"
	"storyline/internal/server"
	storylinesdk "storyline/sdk/go"
)

func newClient(t *testing.T) *storylinesdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, genclient.New(genclient.Config{}))
	e.Designs = blob.NewMemStore()

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})

	_, key, err := e.CreateAPIKey(context.Background(), "sdk-user", "test")
	require.NoError(t, err)
	c := storylinesdk.New(srv.URL)
	c.APIKey = key
	return c
}

func TestStoryRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	s, err := c.CreateStory(ctx, "Signup", "Visitor fills the form. Visitor confirms the email.")
	require.NoError(t, err)
	assert.Equal(t, "DRAFT", s.Status)
	assert.Equal(t, "sdk-user", s.CreatorID)

	s, err = c.TransitionStory(ctx, s.ID, "READY_FOR_REFINEMENT")
	require.NoError(t, err)
	require.NotNil(t, s.SpecificationText)
	assert.True(t, strings.HasPrefix(*s.SpecificationText, "Feature: Signup"))

	page, err := c.ListStories(ctx, storylinesdk.StoryQuery{Status: "READY_FOR_REFINEMENT"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, s.ID, page.Items[0].ID)

	task, err := c.CreateTask(ctx, s.ID, "Build form")
	require.NoError(t, err)
	task, err = c.SetTaskStatus(ctx, task.ID, "COMPLETE")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", task.Status)

	dash, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.Coverage.TotalStories)

	evts, err := c.Events(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, evts)
}

func TestDesignAndErrors(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	s, err := c.CreateStory(ctx, "Cart", "Shopper reviews the cart.")
	require.NoError(t, err)

	_, err = c.AnalyzeDesign(ctx, s.ID)
	var apiErr *storylinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPreconditionFailed, apiErr.StatusCode)
	assert.Equal(t, "precondition_failed", apiErr.Code)

	s, err = c.SetDesign(ctx, s.ID, "https://example.com/cart.png")
	require.NoError(t, err)
	require.NotNil(t, s.DesignReference)

	analysis, err := c.AnalyzeDesign(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "fallback", analysis.Source)
	assert.NotEmpty(t, analysis.GeneratedDescription)

	_, err = c.UploadDesign(ctx, s.ID, "application/pdf", []byte("%PDF"))
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnsupportedMediaType, apiErr.StatusCode)

	_, err = c.GetStory(ctx, "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}
