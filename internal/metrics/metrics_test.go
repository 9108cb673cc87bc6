package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordWriteQuorumTalliesSuccessAndFailureSeparately(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordWriteQuorum(true)
	m.RecordWriteQuorum(false)
	m.RecordWriteQuorum(true)

	require.Equal(t, float64(2), testutil.ToFloat64(m.WriteQuorumSuccess))
	require.Equal(t, float64(1), testutil.ToFloat64(m.WriteQuorumFailure))
}

func TestRecordAntiEntropyRoundPrioritizesErrorOverInSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAntiEntropyRound(true, errors.New("boom"))

	require.Equal(t, float64(1), testutil.ToFloat64(m.AntiEntropyRoundErrors))
	require.Equal(t, float64(0), testutil.ToFloat64(m.AntiEntropyRoundsInSync))
}

func TestRecordAntiEntropyRoundSplitsInSyncAndDivergent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAntiEntropyRound(true, nil)
	m.RecordAntiEntropyRound(false, nil)

	require.Equal(t, float64(1), testutil.ToFloat64(m.AntiEntropyRoundsInSync))
	require.Equal(t, float64(1), testutil.ToFloat64(m.AntiEntropyRoundsDivergent))
}

func TestRecordRepairSelectionSplitsSelectedAndSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRepairSelection(3, 10)

	require.Equal(t, float64(3), testutil.ToFloat64(m.RepairTokensSelected))
	require.Equal(t, float64(7), testutil.ToFloat64(m.RepairTokensSkipped))
}

func TestRecordRepairSelectionClampsSelectedToTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRepairSelection(15, 10)

	require.Equal(t, float64(10), testutil.ToFloat64(m.RepairTokensSelected))
	require.Equal(t, float64(0), testutil.ToFloat64(m.RepairTokensSkipped))
}

func TestGinMiddlewareRecordsRequestOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg)

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/kv/:key", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/kv/foo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/kv/:key", http.MethodGet, "200"))
	require.Equal(t, float64(1), count)
}
