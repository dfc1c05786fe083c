package capelinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capeline/internal/config"
	"capeline/internal/db"
	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/migrate"
	"capeline/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default(), nil)
	_, err = e.NewGame(context.Background(), "default", domain.NewGameOptions{}, false)
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := server.SignToken("sdk-secret", "sdk-tester", 0)
	require.NoError(t, err)
	c := New(srv.URL, "")
	c.BearerToken = token
	return c
}

func TestClientPlaysADay(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	task, err := c.CreateTask(ctx, Task{Title: "Walk the dog", Type: "WORK", RequiredIdentity: "CIVILIAN", Difficulty: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)

	day, err := c.AdvanceDay(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, day.Report)
	assert.Equal(t, 1, day.Report.Day)

	save, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, save.GameState.Day)
	require.Len(t, save.GameState.ActiveTasks, 1)

	res, err := c.ResolveCheck(ctx, task.ID, "intellect")
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	require.NotNil(t, res.Check)
	assert.Equal(t, task.ID, res.Outcome.TaskID)

	events, err := c.Events(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "sdk-tester", events[0].ActorID)
}

func TestClientSurfacesErrorEnvelope(t *testing.T) {
	c := newClient(t)
	_, err := c.ResolveCheck(context.Background(), "missing", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	c.BearerToken = ""
	_, err = c.Save(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
