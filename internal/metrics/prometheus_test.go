package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"payengine/internal/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(metrics.EventFrameIn, map[string]string{metrics.LabelKind: "host_token"})
	rec.IncCounter(metrics.EventFrameIn, map[string]string{metrics.LabelKind: "host_token"})
	rec.ObserveLatency(metrics.OpHandshake, 20*time.Millisecond, map[string]string{metrics.LabelOutcome: "ok"})

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]int{}
	for _, mf := range families {
		counts[mf.GetName()] = len(mf.GetMetric())
		if mf.GetName() == "payengine_events_total" {
			require.Equal(t, float64(2), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.Equal(t, 1, counts["payengine_events_total"])
	require.Equal(t, 1, counts["payengine_operation_seconds"])

	_, err = metrics.NewPrometheusRecorder(reg)
	require.Error(t, err, "second registration must fail")
}
