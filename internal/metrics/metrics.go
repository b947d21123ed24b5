// Package metrics exposes Prometheus collectors for a harvest run.
//
// A run is a batch job, so collectors live on a private registry that is
// pushed to a Pushgateway when the run ends instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Asset outcomes.
const (
	AssetFetched = "fetched"
	AssetSkipped = "skipped"
	AssetFailed  = "failed"
)

// Record stages.
const (
	RecordRaw       = "raw"
	RecordClean     = "clean"
	RecordDropped   = "dropped"
	RecordMalformed = "malformed"
)

// Recorder owns the collectors of one run. A nil *Recorder ignores every
// observation.
type Recorder struct {
	registry        *prometheus.Registry
	locators        prometheus.Counter
	pagesFailed     prometheus.Counter
	assets          *prometheus.CounterVec
	bytes           prometheus.Counter
	images          *prometheus.CounterVec
	records         *prometheus.CounterVec
	publishAttempts *prometheus.CounterVec
}

// NewRecorder registers the run collectors, labeled with the source.
func NewRecorder(source string) *Recorder {
	labels := prometheus.Labels{"source": source}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		locators: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "harvest_locators_discovered_total",
			Help:        "Total number of item locators produced by discovery.",
			ConstLabels: labels,
		}),
		pagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "harvest_pages_failed_total",
			Help:        "Total number of item pages that could not be fetched or parsed.",
			ConstLabels: labels,
		}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "harvest_assets_total",
			Help:        "Total number of asset fetch attempts, labeled by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "harvest_asset_bytes_total",
			Help:        "Total number of asset bytes downloaded.",
			ConstLabels: labels,
		}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "harvest_images_validated_total",
			Help:        "Total number of raw images validated, labeled by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "harvest_records_total",
			Help:        "Total number of metadata records, labeled by stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "harvest_publish_attempts_total",
			Help:        "Total number of publish attempts, labeled by status.",
			ConstLabels: labels,
		}, []string{"status"}),
	}
	r.registry.MustRegister(r.locators, r.pagesFailed, r.assets, r.bytes, r.images, r.records, r.publishAttempts)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveLocators adds n discovered locators.
func (r *Recorder) ObserveLocators(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.locators.Add(float64(n))
}

// ObservePageFailure counts one failed item page.
func (r *Recorder) ObservePageFailure() {
	if r == nil {
		return
	}
	r.pagesFailed.Inc()
}

// ObserveAsset counts one asset outcome and the bytes it downloaded.
func (r *Recorder) ObserveAsset(outcome string, bytesFetched int64) {
	if r == nil {
		return
	}
	r.assets.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		r.bytes.Add(float64(bytesFetched))
	}
}

// ObserveImage counts one validated raw image.
func (r *Recorder) ObserveImage(valid bool) {
	if r == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	r.images.WithLabelValues(result).Inc()
}

// ObserveRecord counts one record at the given stage.
func (r *Recorder) ObserveRecord(stage string) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(stage).Inc()
}

// ObservePublishAttempt counts one publish attempt.
func (r *Recorder) ObservePublishAttempt(err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	r.publishAttempts.WithLabelValues(status).Inc()
}

// Push sends the registry to a Pushgateway, replacing the job's metrics.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
