// Package metrics holds the Prometheus collectors for the file browser.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yourfiles"

var (
	// ListingsTotal counts prefix listings by outcome.
	ListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "requests_total",
			Help:      "Prefix listings by outcome",
		},
		[]string{"status"}, // ok, error
	)

	// ListingDuration tracks how long a full listing takes, all pages included.
	ListingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "duration_seconds",
			Help:      "Time spent listing a prefix",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// UploadsTotal counts settled file uploads by final status.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Uploaded files by final status",
		},
		[]string{"status"}, // uploaded, failed, aborted
	)

	// UploadedBytes counts bytes sent to the object store.
	UploadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes sent by file uploads",
		},
	)

	// DeleteBatchesTotal counts bulk delete requests.
	DeleteBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delete",
			Name:      "batches_total",
			Help:      "Bulk delete requests by outcome",
		},
		[]string{"status"}, // ok, error
	)

	// DeletedObjectsTotal counts keys reported deleted.
	DeletedObjectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delete",
			Name:      "objects_total",
			Help:      "Objects reported deleted by bulk deletes",
		},
	)

	// CredentialRefreshesTotal counts credential endpoint calls by outcome.
	CredentialRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "refreshes_total",
			Help:      "Credential refreshes by outcome",
		},
		[]string{"status"}, // ok, error
	)
)

// Status returns the label value for an error outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
