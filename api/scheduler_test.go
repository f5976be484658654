package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
)

func newTestScheduler(ts *testServer) *DepreciationScheduler {
	ds := NewDepreciationScheduler(ts.engine, nil)
	ds.Today = func() depreciation.Date { return date("2024-03-31") }
	ds.Gauge = ts.metrics
	return ds
}

func TestScheduler_RunNowRecordsRuns(t *testing.T) {
	// GIVEN: A submitted asset
	// WHEN: The scheduler sweeps with automatic posting disabled, then enabled
	// THEN: The first run is skipped, the second posts three months; both
	//       are recorded and the asset gauge is refreshed

	ts := newTestServer(t)
	ts.submitted(t, "A-1")
	ds := newTestScheduler(ts)
	require.NotNil(t, ds.Runs)

	report, err := ds.RunNow(ts.ctx)
	require.NoError(t, err)
	assert.True(t, report.Disabled)

	ts.engine.SetAutomaticPosting(true)
	report, err = ds.RunNow(ts.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Postings)

	runs, err := ts.store.ListSweepRuns(ts.ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	statuses := []string{runs[0].Status, runs[1].Status}
	assert.ElementsMatch(t, []string{"skipped", "completed"}, statuses)
	for _, run := range runs {
		assert.Equal(t, "2024-03-31", run.RunDate.String())
		assert.NotNil(t, run.CompletedAt)
	}

	rec := ts.do(t, http.MethodGet, "/api/depreciation/runs", nil)
	requireStatus(t, rec, http.StatusOK)
	dtos := decodeBody[[]SweepRunDTO](t, rec)
	require.Len(t, dtos, 2)
	assert.NotEmpty(t, dtos[0].CompletedAt)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `asset_depreciation_assets{status="Partially Depreciated"} 1`)
}

func TestScheduler_RecordsFailures(t *testing.T) {
	// GIVEN: An asset of a company without accounts next to a configured one
	// WHEN: The scheduler sweeps
	// THEN: The configured asset is posted and the run is marked as
	//       completed with failures

	ts := newTestServer(t)
	ts.engine.SetAutomaticPosting(true)
	ts.submitted(t, "A-1")
	bad := demoAsset("A-2", "Unconfigured lathe")
	bad.Company = "Unconfigured Ltd"
	require.NoError(t, ts.handler.insertAndSubmit(ts.ctx, bad))

	report, err := newTestScheduler(ts).RunNow(ts.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Postings)
	require.Len(t, report.Failures, 1)

	runs, err := ts.store.ListSweepRuns(ts.ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed_with_failures", runs[0].Status)
	assert.Equal(t, 1, runs[0].Failures)
	assert.NotEmpty(t, runs[0].Error)
}

func TestScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)
	ds := newTestScheduler(ts)

	// WHEN: Disabled
	// THEN: Start does nothing
	ds.Enabled = false
	ds.Start()
	ds.Stop()
	runs, err := ts.store.ListSweepRuns(ts.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// WHEN: Enabled
	// THEN: A sweep runs right away, and the scheduler can be restarted
	ds.Enabled = true
	for want := 1; want <= 2; want++ {
		ds.Start()
		require.Eventually(t, func() bool {
			runs, err := ts.store.ListSweepRuns(ts.ctx, 0)
			return err == nil && len(runs) == want && runs[0].Status == "skipped"
		}, 2*time.Second, 10*time.Millisecond)
		ds.Stop()
	}

	assert.WithinDuration(t, time.Now().Add(time.Hour), ds.NextRunTime(), time.Minute)
}
