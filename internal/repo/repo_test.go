package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capeline/internal/db"
	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/migrate"
	"capeline/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	_, err := r.GetSave(ctx, "default")
	require.ErrorIs(t, err, repo.ErrNotFound)

	s := domain.NewSave(domain.NewGameOptions{CivilianName: "Dana", SuperName: "Nightjar", StartingMoney: 75})
	s.GameState.Day = 3
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.UpsertSaveTx(ctx, tx, "default", s, "2026-01-01T00:00:00Z"))
	require.NoError(t, tx.Commit())

	got, err := r.GetSave(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	list, err := r.ListSaves(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Day)
	assert.Equal(t, "Dana", list[0].Name)
	assert.Equal(t, 75, list[0].Money)
}

func TestReportsAndEvents(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	w := events.Writer{DB: r.DB}
	s := domain.NewSave(domain.NewGameOptions{})

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.UpsertSaveTx(ctx, tx, "a", s, "2026-01-01T00:00:00Z"))
	for day := 1; day <= 3; day++ {
		require.NoError(t, r.InsertReportTx(ctx, tx, "a", domain.DailyReport{Day: day, Financials: domain.Financials{Rent: day}}, "2026-01-01T00:00:00Z"))
		require.NoError(t, w.Append(ctx, tx, "day.advanced", "a", "save", "a", "tester", events.EventPayload{"day": day}))
	}
	require.NoError(t, tx.Commit())

	reports, err := r.ListReports(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 3, reports[0].Day)
	assert.Equal(t, 3, reports[0].Report.Financials.Rent)

	one, err := r.GetReport(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, one.Report.Day)

	latest, err := r.LatestEvents(ctx, 10, "a", "")
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Greater(t, latest[0].ID, latest[1].ID)

	after, err := r.EventsAfter(ctx, 10, latest[2].ID, "a")
	require.NoError(t, err)
	assert.Len(t, after, 2)

	maxID, err := r.LatestEventID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, latest[0].ID, maxID)
}
