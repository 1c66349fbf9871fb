package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketsync"

// -----------------------------------------------------------------------------
// Push feed
// -----------------------------------------------------------------------------

var (
	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_connected",
		Help:      "1 while the push feed socket is connected",
	})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_reconnects_total",
		Help:      "Successful push feed reconnections",
	})

	FeedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_messages_total",
		Help:      "Decoded push feed messages by event and world",
	}, []string{"event", "world"})

	FeedDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_decode_errors_total",
		Help:      "Push feed frames dropped because they failed to decode",
	})

	FeedStalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_stalls_total",
		Help:      "Push feed frames that waited for the dispatcher because the output buffer was full",
	})
)

// -----------------------------------------------------------------------------
// Reconciliation
// -----------------------------------------------------------------------------

var (
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Reconcile tasks by kind and outcome",
	}, []string{"kind", "outcome"})

	ReconcileFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_failures_total",
		Help:      "Reconcile tasks that returned an error, by source",
	}, []string{"source"})

	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Time spent in one reconcile task including the lock wait",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_in_flight",
		Help:      "Reconcile tasks currently holding a concurrency slot",
	})

	ListingsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_added_total",
		Help:      "Listing rows inserted",
	})

	ListingsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_removed_total",
		Help:      "Listing rows deleted",
	})

	SalesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_recorded_total",
		Help:      "Sale rows inserted",
	})
)

// -----------------------------------------------------------------------------
// Recency and sweep
// -----------------------------------------------------------------------------

var (
	GapItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recency_gap_items_total",
		Help:      "Items found updated upstream but missing locally, by world",
	}, []string{"world"})

	GapChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recency_checks_total",
		Help:      "Gap checks by outcome",
	}, []string{"outcome"})

	SnapshotBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_batches_total",
		Help:      "Snapshot batches fetched, by trigger and outcome",
	}, []string{"trigger", "outcome"})

	CatalogItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_items",
		Help:      "Marketable item ids currently known",
	})

	RecencyFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recency_flushes_total",
		Help:      "Buffered recency flushes by outcome",
	}, []string{"outcome"})

	RecencyPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recency_pending",
		Help:      "Recency bumps buffered and not yet written",
	})
)

// -----------------------------------------------------------------------------
// Distribution
// -----------------------------------------------------------------------------

var (
	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_total",
		Help:      "Events skipped by lagging bus cursors, by topic",
	}, []string{"topic"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Connected websocket subscribers",
	})

	SubscriberFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriber_frames_total",
		Help:      "Frames written to subscribers, by type",
	}, []string{"type"})
)

// World formats a world id as a label value.
func World(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

// BusDropHook adapts BusDropped to the event bus drop callback.
func BusDropHook(topic string, n uint64) {
	BusDropped.WithLabelValues(topic).Add(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
