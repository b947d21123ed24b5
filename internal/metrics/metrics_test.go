package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := NewRecorder("ukpuru")
	r.ObserveLocators(3)
	r.ObservePageFailure()
	r.ObserveAsset(AssetFetched, 512)
	r.ObserveAsset(AssetFetched, 0)
	r.ObserveAsset(AssetSkipped, 0)
	r.ObserveImage(true)
	r.ObserveImage(false)
	r.ObserveRecord(RecordRaw)
	r.ObserveRecord(RecordDropped)
	r.ObservePublishAttempt(errors.New("boom"))
	r.ObservePublishAttempt(nil)

	assert.InDelta(t, 3, testutil.ToFloat64(r.locators), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.pagesFailed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.assets.WithLabelValues(AssetFetched)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.assets.WithLabelValues(AssetSkipped)), 0)
	assert.InDelta(t, 512, testutil.ToFloat64(r.bytes), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.images.WithLabelValues("invalid")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.records.WithLabelValues(RecordDropped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.publishAttempts.WithLabelValues("failure")), 0)
	series, err := testutil.GatherAndCount(r.Registry())
	require.NoError(t, err)
	assert.Equal(t, 11, series)
}

func TestNilRecorder(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.ObserveLocators(1)
	r.ObservePageFailure()
	r.ObserveAsset(AssetFailed, 10)
	r.ObserveImage(true)
	r.ObserveRecord(RecordClean)
	r.ObservePublishAttempt(nil)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.Push(context.Background(), "http://unused", "job"))
}

func TestPush(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen <- req.Method + " " + req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewRecorder("gijones")
	r.ObserveRecord(RecordClean)
	require.NoError(t, r.Push(context.Background(), server.URL, "heritage_harvest"))
	assert.Equal(t, "PUT /metrics/job/heritage_harvest", <-seen)
}

func TestPushFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewRecorder("gijones").Push(context.Background(), server.URL, "heritage_harvest")
	assert.Error(t, err)
}
