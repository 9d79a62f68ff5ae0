package usage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/db"
	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/settings"
)

// testNow is mid-afternoon local time on the day most fixtures use.
var testNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.Local)

type fakeFetcher struct {
	totals map[models.Tool][]models.DailyTotal
	errs   map[models.Tool]error
	calls  atomic.Int32
}

func (f *fakeFetcher) FetchDailyTotals(_ context.Context, tool models.Tool) ([]models.DailyTotal, error) {
	f.calls.Add(1)
	if err := f.errs[tool]; err != nil {
		return nil, err
	}
	return f.totals[tool], nil
}

type fakePrefs struct {
	mu       sync.Mutex
	settings settings.Settings
	recorded int
}

func (p *fakePrefs) Get() settings.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

func (p *fakePrefs) RecordMaintenance(at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.LastMaintenanceAt = at
	p.recorded++
	return nil
}

type failingBackfillStore struct {
	*db.DB
}

func (failingBackfillStore) BackfillSampleDeltas() (int, error) {
	return 0, db.ErrMaintenance
}

type vacuumCountingStore struct {
	*db.DB
	vacuums int
	fail    bool
}

func (v *vacuumCountingStore) Vacuum() error {
	v.vacuums++
	if v.fail {
		return errors.New("disk busy")
	}
	return v.DB.Vacuum()
}

type testEnv struct {
	svc     *Service
	store   *db.DB
	fetcher *fakeFetcher
	prefs   *fakePrefs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := db.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fakeFetcher{
		totals: map[models.Tool][]models.DailyTotal{},
		errs:   map[models.Tool]error{},
	}
	prefs := &fakePrefs{settings: settings.Default()}

	svc := New(store, f, prefs)
	svc.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = svc.Close() })

	return &testEnv{svc: svc, store: store, fetcher: f, prefs: prefs}
}

func todayKey() string {
	return datekey.FromTime(testNow)
}

func TestRefresh_StoresTotalsAndTodaySample(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.totals[models.ToolClaude] = []models.DailyTotal{
		{DateKey: datekey.DaysAgo(testNow, 1), Cost: 4},
		{DateKey: todayKey(), Cost: 12.5},
	}
	env.fetcher.totals[models.ToolCodex] = []models.DailyTotal{{DateKey: todayKey(), Cost: 3}}

	result := env.svc.Refresh(context.Background())
	require.NoError(t, result.Err())
	require.Empty(t, result.Status())
	require.NotEmpty(t, result.RunID)
	require.Equal(t, []models.Tool{models.ToolClaude, models.ToolCodex}, result.Tools)
	require.InDelta(t, 12.5, result.TodayCost[models.ToolClaude], 0.001)

	total, ok := env.store.DailyTotal(datekey.DaysAgo(testNow, 1), models.ToolClaude)
	require.True(t, ok)
	require.InDelta(t, 4, total, 0.001)

	sample, ok := env.store.LatestSample(todayKey(), models.ToolCodex)
	require.True(t, ok)
	require.InDelta(t, 3, sample.TotalCost, 0.001)
	require.True(t, sample.RecordedAt.Equal(testNow))

	snap := env.svc.Snapshot()
	require.True(t, snap.LastUpdated.Equal(testNow))
	require.Empty(t, snap.Status)
	require.InDelta(t, 15.5, snap.Combined, 0.001)
	require.Equal(t, "$15.50", snap.CombinedText())
}

func TestRefresh_ToolFailureDoesNotStopOthers(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("boom")
	env.fetcher.errs[models.ToolClaude] = boom
	env.fetcher.totals[models.ToolCodex] = []models.DailyTotal{{DateKey: todayKey(), Cost: 2}}

	result := env.svc.Refresh(context.Background())
	require.ErrorIs(t, result.Err(), boom)
	require.Equal(t, "Claude Code: boom", result.Status())

	_, ok := env.store.DailyTotal(todayKey(), models.ToolCodex)
	require.True(t, ok)

	snap := env.svc.Snapshot()
	require.True(t, snap.LastUpdated.IsZero())
	require.Equal(t, "Claude Code: boom", snap.Status)
}

func TestRefresh_MultipleFailuresJoined(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.errs[models.ToolClaude] = errors.New("npx missing")
	env.fetcher.errs[models.ToolCodex] = errors.New("bad json")

	result := env.svc.Refresh(context.Background())
	require.Equal(t, "Claude Code: npx missing | Codex: bad json", result.Status())
}

func TestRefresh_NoToolsEnabled(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.settings.IncludeClaude = false
	env.prefs.settings.IncludeCodex = false

	result := env.svc.Refresh(context.Background())
	require.True(t, result.NoTools)
	require.ErrorIs(t, result.Err(), ErrNoToolsEnabled)
	require.Equal(t, int32(0), env.fetcher.calls.Load())
	require.Equal(t, StatusNoTools, env.svc.Snapshot().Status)
}

func TestRefresh_OnlyEnabledTools(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.settings.IncludeClaude = false

	result := env.svc.Refresh(context.Background())
	require.Equal(t, []models.Tool{models.ToolCodex}, result.Tools)
	require.Equal(t, int32(1), env.fetcher.calls.Load())
}

func TestRefresh_NoSampleWithoutToday(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.totals[models.ToolClaude] = []models.DailyTotal{{DateKey: datekey.DaysAgo(testNow, 2), Cost: 9}}

	result := env.svc.Refresh(context.Background())
	require.NoError(t, result.Err())
	_, ok := result.TodayCost[models.ToolClaude]
	require.False(t, ok)

	_, ok = env.store.LatestSample(todayKey(), models.ToolClaude)
	require.False(t, ok)
}

func TestRefresh_SkippedWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	env.svc.refreshing = true

	result := env.svc.Refresh(context.Background())
	require.True(t, result.Skipped)
	require.Equal(t, int32(0), env.fetcher.calls.Load())
}

func TestRefresh_ClearsPreviousStatus(t *testing.T) {
	env := newTestEnv(t)
	env.svc.SetStatus(StatusDatabaseUnavailable)

	env.svc.Refresh(context.Background())
	require.Empty(t, env.svc.Snapshot().Status)
}

func TestRefresh_Events(t *testing.T) {
	env := newTestEnv(t)

	env.svc.Refresh(context.Background())

	started := <-env.svc.Events()
	require.Equal(t, EventRefreshStarted, started.Type)
	finished := <-env.svc.Events()
	require.Equal(t, EventRefreshFinished, finished.Type)
	require.Equal(t, started.Refresh.RunID, finished.Refresh.RunID)
}

func TestSnapshot_TotalsFallBackToLatestSample(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.InsertSample(models.ToolCodex, 7.25, testNow.Add(-time.Hour)))

	snap := env.svc.Snapshot()
	require.Equal(t, models.MaintenanceAutomatic, snap.MaintenanceMode)
	require.Len(t, snap.Totals, 2)
	require.InDelta(t, 0, snap.Total(models.ToolClaude), 0.001)
	require.InDelta(t, 7.25, snap.Total(models.ToolCodex), 0.001)

	require.NoError(t, env.store.UpsertDailyTotals(models.ToolCodex, []models.DailyTotal{{DateKey: todayKey(), Cost: 8}}))
	require.InDelta(t, 8, env.svc.Snapshot().Total(models.ToolCodex), 0.001)
}

func TestSnapshot_HourlySeries(t *testing.T) {
	env := newTestEnv(t)
	start := datekey.StartOfDay(testNow)
	require.NoError(t, env.store.InsertSample(models.ToolClaude, 4, start.Add(2*time.Hour)))
	require.NoError(t, env.store.InsertSample(models.ToolClaude, 10, start.Add(9*time.Hour+30*time.Minute)))
	require.NoError(t, env.store.InsertSample(models.ToolCodex, 3, start.Add(14*time.Hour)))

	snap := env.svc.Snapshot()
	require.NotEmpty(t, snap.Hourly)

	byTool := map[models.Tool]float64{}
	for i, p := range snap.Hourly {
		byTool[p.Tool] += p.Cost
		if i > 0 {
			require.False(t, p.Date.Before(snap.Hourly[i-1].Date))
		}
	}
	require.InDelta(t, 10, byTool[models.ToolClaude], 0.001)
	require.InDelta(t, 3, byTool[models.ToolCodex], 0.001)
}

func TestSnapshot_DailySeriesWindowAndTools(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertDailyTotals(models.ToolClaude, []models.DailyTotal{
		{DateKey: datekey.DaysAgo(testNow, 35), Cost: 1},
		{DateKey: datekey.DaysAgo(testNow, 29), Cost: 2},
		{DateKey: todayKey(), Cost: 3},
	}))
	require.NoError(t, env.store.UpsertDailyTotals(models.ToolCodex, []models.DailyTotal{{DateKey: todayKey(), Cost: 4}}))

	snap := env.svc.Snapshot()
	require.Len(t, snap.Daily, 3)
	require.Equal(t, datekey.DaysAgo(testNow, 29), datekey.FromTime(snap.Daily[0].Date))

	env.prefs.settings.IncludeCodex = false
	snap = env.svc.Snapshot()
	require.Len(t, snap.Daily, 2)
	for _, p := range snap.Daily {
		require.Equal(t, models.ToolClaude, p.Tool)
	}
	require.Len(t, snap.Totals, 1)

	require.Len(t, env.svc.DailySeries(1), 1)
}

func TestRunMaintenance_Forced(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.settings.MaintenanceMode = models.MaintenanceManual
	require.NoError(t, env.store.UpsertDailyTotals(models.ToolCodex, []models.DailyTotal{{DateKey: "Mar 1, 2026", Cost: 5}}))

	result := env.svc.RunMaintenance(true)
	require.True(t, result.Ran)
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.RollupsNormalized)
	require.Equal(t, "Maintenance complete. Updated 0 snapshots, normalized 1 daily totals.", result.Message())
	require.True(t, env.prefs.Get().LastMaintenanceAt.Equal(testNow))
	require.Equal(t, result.Message(), env.svc.Snapshot().MaintenanceStatus)
}

func TestRunMaintenance_VacuumsOnlyAfterChanges(t *testing.T) {
	env := newTestEnv(t)
	store := &vacuumCountingStore{DB: env.store}
	svc := New(store, env.fetcher, env.prefs)
	svc.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = svc.Close() })

	result := svc.RunMaintenance(true)
	require.NoError(t, result.Err)
	require.Equal(t, 0, store.vacuums, "nothing changed, nothing to reclaim")

	require.NoError(t, env.store.UpsertDailyTotals(models.ToolCodex, []models.DailyTotal{{DateKey: "Mar 2, 2026", Cost: 7}}))
	result = svc.RunMaintenance(true)
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.RollupsNormalized)
	require.Equal(t, 1, store.vacuums)
}

func TestRunMaintenance_VacuumFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	store := &vacuumCountingStore{DB: env.store, fail: true}
	svc := New(store, env.fetcher, env.prefs)
	svc.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = svc.Close() })
	require.NoError(t, env.store.UpsertDailyTotals(models.ToolCodex, []models.DailyTotal{{DateKey: "Mar 2, 2026", Cost: 7}}))

	result := svc.RunMaintenance(true)
	require.NoError(t, result.Err)
	require.Equal(t, 1, store.vacuums)
	require.Equal(t, 1, env.prefs.recorded)
}

func TestRunMaintenance_ManualModeSkipsUnforced(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.settings.MaintenanceMode = models.MaintenanceManual

	require.False(t, env.svc.RunMaintenance(false).Ran)
	require.Equal(t, 0, env.prefs.recorded)
}

func TestRunMaintenance_AutomaticOncePerDay(t *testing.T) {
	env := newTestEnv(t)

	require.True(t, env.svc.RunMaintenance(false).Ran)
	require.False(t, env.svc.RunMaintenance(false).Ran)

	env.svc.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	require.True(t, env.svc.RunMaintenance(false).Ran)
	require.Equal(t, 2, env.prefs.recorded)
}

func TestRunMaintenance_Failure(t *testing.T) {
	env := newTestEnv(t)
	svc := New(failingBackfillStore{env.store}, env.fetcher, env.prefs)
	svc.now = func() time.Time { return testNow }

	result := svc.RunMaintenance(true)
	require.True(t, result.Ran)
	require.ErrorIs(t, result.Err, db.ErrMaintenance)
	require.Contains(t, result.Message(), "Maintenance failed: ")
	require.Equal(t, 0, env.prefs.recorded)
}

func TestStart_PollsAndReschedules(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.settings.MaintenanceMode = models.MaintenanceManual
	env.svc.initialDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.svc.Start(ctx)

	require.Eventually(t, func() bool {
		return env.fetcher.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond, "first refresh did not run")

	env.svc.Reschedule(20 * time.Millisecond)
	require.Eventually(t, func() bool {
		return env.fetcher.calls.Load() >= 6
	}, 2*time.Second, 5*time.Millisecond, "rescheduled refreshes did not run")
}

func TestFormatUSD(t *testing.T) {
	tests := map[float64]string{
		0:        "$0.00",
		3.5:      "$3.50",
		1234.567: "$1,234.57",
		1e6:      "$1,000,000.00",
	}
	for in, want := range tests {
		require.Equal(t, want, FormatUSD(in))
	}
}
