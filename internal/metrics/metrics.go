package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts processed scans by resulting status.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "scans_total",
		Help:      "Scans processed, by resulting status.",
	}, []string{"status"})

	// SignIns counts sign-in attempts by result.
	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "signins_total",
		Help:      "Sign-in attempts, by result.",
	}, []string{"result"})

	// StoreConflicts counts optimistic-lock conflicts on day records.
	StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "store_conflicts_total",
		Help:      "Day record writes rejected because of a concurrent update.",
	})

	// ScanDuration observes the full read-modify-write cycle of a scan.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qrattend",
		Name:      "scan_duration_seconds",
		Help:      "Time spent recording a scan, including re-reads after conflicts.",
		Buckets:   prometheus.DefBuckets,
	})
)
