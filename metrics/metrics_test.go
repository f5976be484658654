package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/depreciation/store"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.PostingsCreated("Main Book", 3, decimal.RequireFromString("30000"))
	m.PostingsCreated("Main Book", 1, decimal.RequireFromString("10000.5"))
	m.PostingCancelled("Main Book")
	m.ScheduleFailed("missing_configuration")
	m.ScheduleFailed("missing_configuration")
	m.SweepCompleted(7, 2, 150*time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.PostingsTotal.WithLabelValues("Main Book")))
	assert.InDelta(t, 40000.5, testutil.ToFloat64(m.PostedAmount.WithLabelValues("Main Book")), 0.001)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostingsCancelled.WithLabelValues("Main Book")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScheduleFailures.WithLabelValues("missing_configuration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepsTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.LastSweepSchedules))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUpdateAssetMetrics(t *testing.T) {
	// GIVEN: Two submitted assets and one scrapped
	// WHEN: Asset metrics are refreshed twice, the second time after a scrap
	// THEN: The gauge reflects the latest counts only

	ctx := context.Background()
	st := store.NewMemory()
	m := NewWithRegistry(prometheus.NewRegistry())

	for id, status := range map[string]depreciation.AssetStatus{
		"A-1": depreciation.StatusSubmitted,
		"A-2": depreciation.StatusSubmitted,
		"A-3": depreciation.StatusScrapped,
	} {
		require.NoError(t, st.SaveAsset(ctx, &depreciation.Asset{ID: depreciation.AssetID(id), Status: status}))
	}
	require.NoError(t, m.UpdateAssetMetrics(ctx, st))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Assets.WithLabelValues("Submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Assets.WithLabelValues("Scrapped")))

	require.NoError(t, st.SaveAsset(ctx, &depreciation.Asset{ID: "A-1", Status: depreciation.StatusScrapped}))
	require.NoError(t, st.SaveAsset(ctx, &depreciation.Asset{ID: "A-2", Status: depreciation.StatusScrapped}))
	require.NoError(t, m.UpdateAssetMetrics(ctx, st))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Assets.WithLabelValues("Scrapped")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Assets))
}
