package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pomopro",
		Subsystem: "persistence",
		Name:      "last_session_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session written to Postgres.",
	})
	sessionCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pomopro",
		Subsystem: "persistence",
		Name:      "last_session_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session transitioned to completed.",
	})
	syncOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pomopro",
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Offline sync records processed, labeled by reconciliation outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(sessionPersistGauge, sessionCompletedGauge, syncOutcomeCounter)
}

// RecordSessionPersisted updates the persistence watermark gauge.
func RecordSessionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	sessionPersistGauge.Set(float64(ts.Unix()))
}

// RecordSessionCompleted updates the completion watermark gauge.
func RecordSessionCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	sessionCompletedGauge.Set(float64(ts.Unix()))
}

// RecordSyncOutcome counts one reconciled sync record.
func RecordSyncOutcome(outcome string) {
	syncOutcomeCounter.WithLabelValues(outcome).Inc()
}
