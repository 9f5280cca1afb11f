package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// promauto registers into the default registry, so every test gets its own
// namespace to avoid duplicate-registration panics.
var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.evaluationsTotal)
	assert.NotNil(t, collector.penaltiesApplied)
	assert.NotNil(t, collector.activePenalties)
	assert.NotNil(t, collector.appealsFiled)
	assert.NotNil(t, collector.retrainingSessions)
	assert.NotNil(t, collector.httpRequestsTotal)
}

func TestCollector_NilLogger(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)
	assert.NotNil(t, collector)
}

func TestCollector_RecordEvaluation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordEvaluation("penalty_applied", 15*time.Millisecond)
	collector.RecordEvaluation("none", 5*time.Millisecond)
	collector.RecordTrigger("error_rate")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.evaluationsTotal))
	assert.Greater(t, testutil.CollectAndCount(collector.triggersFired), 0)
}

func TestCollector_PenaltyGauge(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordPenaltyApplied(3)
	collector.RecordPenaltyApplied(3)
	assert.InDelta(t, 2.0, testutil.ToFloat64(collector.activePenalties.WithLabelValues("3")), 1e-9)

	collector.RecordPenaltyLifted(3, "expired")
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.activePenalties.WithLabelValues("3")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.penaltiesLifted.WithLabelValues("expired")), 1e-9)
}

func TestCollector_RecordAppeals(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAppealFiled("manual")
	collector.RecordAppealFiled("anomaly")
	collector.RecordAppealReview("approved")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.appealsFiled))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.appealReviews))
}

func TestCollector_RecordRetrainingAndThrottle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRetraining("started")
	collector.RecordRetraining("failed")
	collector.RecordThrottleDenial("agent-1")
	collector.RecordPublishFailure()
	collector.RecordEscalation("observe")
	collector.RecordArchive("penalty", "ok")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.retrainingSessions))
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.throttleDenials.WithLabelValues("agent-1")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.publishFailures), 1e-9)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/governance/dashboard", 200, 20*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/api/v1/governance/dashboard", 200, 10*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.InDelta(t, 2.0,
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/governance/dashboard", "2xx")), 1e-9)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{99, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordEvaluation("none", time.Millisecond)
			collector.RecordPenaltyApplied(2)
			collector.RecordThrottleDenial("agent-1")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.InDelta(t, 10.0, testutil.ToFloat64(collector.penaltiesApplied.WithLabelValues("2")), 1e-9)
}
