package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storyline/internal/blob"
	"storyline/internal/db"
	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/events"
	"storyline/internal/genclient"
	"storyline/internal/migrate"
	"storyline/internal/repo"
	"storyline/internal/synth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

// stubGenerator answers with fixed results and counts calls.
type stubGenerator struct {
	spec        genclient.Result
	design      genclient.Result
	specCalls   atomic.Int32
	designCalls atomic.Int32
	lastRef     atomic.Value
}

func (g *stubGenerator) GenerateSpecification(ctx context.Context, title, description string) genclient.Result {
	g.specCalls.Add(1)
	return g.spec
}

func (g *stubGenerator) DescribeDesign(ctx context.Context, ref string) genclient.Result {
	g.designCalls.Add(1)
	g.lastRef.Store(ref)
	return g.design
}

type testEnv struct {
	Engine engine.Engine
	Gen    *stubGenerator
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	gen := &stubGenerator{
		spec:   genclient.Unavailable("no credential"),
		design: genclient.Unavailable("no credential"),
	}
	eng := engine.New(conn, gen)
	eng.Designs = blob.NewMemStore()
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Gen: gen, Ctx: context.Background()}
}

func (env testEnv) story(t *testing.T, title, description string) domain.Story {
	t.Helper()
	s, err := env.Engine.CreateStory(env.Ctx, engine.StoryCreateOptions{
		Title:       title,
		Description: description,
		ActorID:     "alice",
	})
	require.NoError(t, err)
	return s
}

func TestCreateStoryDefaults(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "  Login  ", "User signs in.")
	assert.Equal(t, "Login", s.Title)
	assert.Equal(t, domain.StatusDraft, s.Status)
	assert.Equal(t, "alice", s.CreatorID)
	assert.Equal(t, "alice", s.AssigneeID)
	assert.Empty(t, s.SpecificationText)

	_, err := env.Engine.CreateStory(env.Ctx, engine.StoryCreateOptions{Title: " ", Description: "d"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	_, err = env.Engine.CreateStory(env.Ctx, engine.StoryCreateOptions{Title: "t", Description: "d", DesignReference: "ftp://x/y.png"})
	require.ErrorAs(t, err, &verr)
}

func TestTransitionGeneratesExternalSpecification(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.spec = genclient.Success("Feature: Login\n  Scenario: remote")
	s := env.story(t, "Login", "User signs in.")

	got, err := env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusReadyForRefinement, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReadyForRefinement, got.Status)
	assert.Equal(t, "Feature: Login\n  Scenario: remote", got.SpecificationText)
	assert.EqualValues(t, 1, env.Gen.specCalls.Load())

	stored, err := env.Engine.Repo.GetStory(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, got.SpecificationText, stored.SpecificationText)
	assert.Equal(t, domain.StatusReadyForRefinement, stored.Status)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.StorySpecificationGenerated, EntityID: s.ID})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evts[0].Payload), &payload))
	assert.Equal(t, "external", payload["source"])
}

func TestTransitionFallsBackWhenUnavailable(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "HU01 - Login flow", "User opens the app. User enters credentials. User sees dashboard.")

	got, err := env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusReadyForRefinement, "bob")
	require.NoError(t, err)
	assert.Equal(t, synth.SynthesizeSpecification(s.Title, s.Description), got.SpecificationText)
	assert.Contains(t, got.SpecificationText, "Scenario: Login flow")
	assert.Contains(t, got.SpecificationText, "Given User opens the app")
	assert.EqualValues(t, 1, env.Gen.specCalls.Load())
}

func TestTransitionFallsBackOnEmptySuccess(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.spec = genclient.Success("")
	s := env.story(t, "Checkout", "User has items in cart.")

	got, err := env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusReadyForRefinement, "")
	require.NoError(t, err)
	assert.Contains(t, got.SpecificationText, "Given User has items in cart")
	assert.Contains(t, got.SpecificationText, "Then the expected outcome is achieved")
}

func TestTransitionKeepsExistingSpecification(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")
	first, err := env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusReadyForRefinement, "bob")
	require.NoError(t, err)

	_, err = env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusDraft, "bob")
	require.NoError(t, err)

	env.Gen.spec = genclient.Success("Feature: something else")
	again, err := env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusReadyForRefinement, "bob")
	require.NoError(t, err)
	assert.Equal(t, first.SpecificationText, again.SpecificationText)
	assert.EqualValues(t, 1, env.Gen.specCalls.Load())
}

func TestNonTriggeringTransitionsDoNotGenerate(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")

	path := []domain.Status{
		domain.StatusRefined,
		domain.StatusDevelopment,
		domain.StatusReadyForTesting,
		domain.StatusReadyForProduction,
		domain.StatusReadyForRefinement,
		domain.StatusReadyForRefinement,
	}
	for _, next := range path {
		got, err := env.Engine.TransitionStatus(env.Ctx, s.ID, next, "bob")
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
		assert.Empty(t, got.SpecificationText)
	}
	assert.EqualValues(t, 0, env.Gen.specCalls.Load())
}

func TestTransitionErrors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.TransitionStatus(env.Ctx, "missing", domain.StatusRefined, "bob")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	s := env.story(t, "Login", "User signs in.")
	_, err = env.Engine.TransitionStatus(env.Ctx, s.ID, domain.Status("ARCHIVED"), "bob")
	assert.ErrorIs(t, err, engine.ErrInvalidStatus)
	assert.EqualValues(t, 0, env.Gen.specCalls.Load())
}

func TestUpdateStoryNeverTouchesSpecification(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")
	refined, err := env.Engine.TransitionStatus(env.Ctx, s.ID, domain.StatusReadyForRefinement, "bob")
	require.NoError(t, err)

	title := "Login v2"
	got, err := env.Engine.UpdateStory(env.Ctx, engine.StoryUpdateOptions{ID: s.ID, Title: &title, ActorID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "Login v2", got.Title)
	assert.Equal(t, refined.SpecificationText, got.SpecificationText)

	empty := " "
	_, err = env.Engine.UpdateStory(env.Ctx, engine.StoryUpdateOptions{ID: s.ID, Description: &empty})
	var verr engine.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestElaborateRequiresDesignReference(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")

	_, _, err := env.Engine.ElaborateFromDesign(env.Ctx, s.ID, "bob")
	assert.ErrorIs(t, err, engine.ErrPreconditionFailed)
	assert.EqualValues(t, 0, env.Gen.designCalls.Load())

	_, _, err = env.Engine.ElaborateFromDesign(env.Ctx, "missing", "bob")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestElaborateFallbackLeavesStoryUntouched(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")
	withRef, err := env.Engine.SetDesignReference(env.Ctx, s.ID, "https://cdn.example.com/login.png", "bob")
	require.NoError(t, err)

	story, out, err := env.Engine.ElaborateFromDesign(env.Ctx, s.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, engine.SourceFallback, out.Source)
	assert.Equal(t, synth.FallbackDesignAnalysis(), out.Text)
	assert.Equal(t, withRef, story)
	assert.Equal(t, "https://cdn.example.com/login.png", env.Gen.lastRef.Load())

	stored, err := env.Engine.Repo.GetStory(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, withRef, stored)
	assert.Empty(t, stored.SpecificationText)
}

func TestElaborateWithoutCredentialSkipsProvider(t *testing.T) {
	var calls atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(provider.Close)

	cfg := genclient.DefaultConfig()
	cfg.BaseURL = provider.URL
	env := newTestEnv(t)
	env.Engine.Generator = genclient.New(cfg, genclient.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	s := env.story(t, "Login", "User signs in.")
	_, err := env.Engine.SetDesignReference(env.Ctx, s.ID, "https://cdn.example.com/login.png", "bob")
	require.NoError(t, err)

	_, out, err := env.Engine.ElaborateFromDesign(env.Ctx, s.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, engine.SourceFallback, out.Source)
	assert.Equal(t, synth.FallbackDesignAnalysis(), out.Text)
	assert.EqualValues(t, 0, calls.Load())
}

func TestElaborateExternal(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.design = genclient.Success("A login form with email and password fields.")
	s := env.story(t, "Login", "User signs in.")
	_, err := env.Engine.AttachDesign(env.Ctx, s.ID, "image/png", []byte("png"), "bob")
	require.NoError(t, err)

	story, out, err := env.Engine.ElaborateFromDesign(env.Ctx, s.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, engine.SourceExternal, out.Source)
	assert.Equal(t, "A login form with email and password fields.", out.Text)
	assert.True(t, blob.IsRef(story.DesignReference))

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.StoryDesignElaborated})
	require.NoError(t, err)
	require.Len(t, evts, 1)
}

func TestAttachDesignErrors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AttachDesign(env.Ctx, "missing", "image/png", []byte("x"), "bob")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	s := env.story(t, "Login", "User signs in.")
	_, err = env.Engine.AttachDesign(env.Ctx, s.ID, "text/plain", []byte("x"), "bob")
	assert.ErrorIs(t, err, blob.ErrUnsupportedType)
}

func TestAssignStory(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")
	got, err := env.Engine.AssignStory(env.Ctx, s.ID, "carol", "alice")
	require.NoError(t, err)
	assert.Equal(t, "carol", got.AssigneeID)

	_, err = env.Engine.AssignStory(env.Ctx, s.ID, "", "alice")
	var verr engine.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTasksLifecycleAndCascade(t *testing.T) {
	env := newTestEnv(t)
	s := env.story(t, "Login", "User signs in.")

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{StoryID: s.ID, Title: "Build form", ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, task.Status)
	assert.Nil(t, task.AssigneeID)

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskDevelopment, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDevelopment, task.Status)

	task, err = env.Engine.AssignTask(env.Ctx, task.ID, "dave", "alice")
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, "dave", *task.AssigneeID)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskStatus("BLOCKED"), "alice")
	assert.ErrorIs(t, err, engine.ErrInvalidStatus)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{StoryID: "missing", Title: "x"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	second, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{StoryID: s.ID, Title: "Write tests"})
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, second.ID, "alice"))
	assert.ErrorIs(t, env.Engine.DeleteTask(env.Ctx, second.ID, "alice"), repo.ErrNotFound)

	require.NoError(t, env.Engine.DeleteStory(env.Ctx, s.ID, "alice"))
	_, err = env.Engine.Repo.GetTask(env.Ctx, task.ID)
	assert.True(t, errors.Is(err, repo.ErrNotFound), "tasks are deleted with their story")
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	a := env.story(t, "A", "a.")
	b := env.story(t, "B", "b.")
	env.story(t, "C", "c.")

	_, err := env.Engine.TransitionStatus(env.Ctx, a.ID, domain.StatusReadyForRefinement, "x")
	require.NoError(t, err)
	_, err = env.Engine.TransitionStatus(env.Ctx, b.ID, domain.StatusReadyForProduction, "x")
	require.NoError(t, err)

	sum, err := env.Engine.Dashboard(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Buckets[engine.BucketBacklog])
	assert.Equal(t, 0, sum.Buckets[engine.BucketInProgress])
	assert.Equal(t, 1, sum.Buckets[engine.BucketDone])
	assert.Equal(t, 1, sum.StatusCounts[domain.StatusDraft])
	assert.Equal(t, 1, sum.Coverage.WithSpecification)
	assert.Equal(t, 2, sum.Coverage.WithoutSpecification)
	assert.Equal(t, 3, sum.Coverage.TotalStories)
	assert.InDelta(t, 33.3, sum.Coverage.CoveragePercentage, 0.0001)
	assert.Len(t, sum.RecentActivity, 3)
}

func TestDashboardEmpty(t *testing.T) {
	env := newTestEnv(t)
	sum, err := env.Engine.Dashboard(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Coverage.CoveragePercentage)
	assert.Empty(t, sum.RecentActivity)
	assert.Len(t, sum.Buckets, 4)
}

func TestCreateAPIKeyStoresOnlyHash(t *testing.T) {
	env := newTestEnv(t)
	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, "ci-bot", "pipeline")
	require.NoError(t, err)
	assert.NotEqual(t, raw, key.KeyHash)
	assert.Equal(t, repo.HashAPIKey(raw), key.KeyHash)

	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", got.ActorID)
	assert.Equal(t, "pipeline", got.Name)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, " ", "")
	var ve engine.ValidationError
	assert.True(t, errors.As(err, &ve))
}
