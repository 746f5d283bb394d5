package metrics_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "metrics-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func readValue(t *testing.T, metric prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, metric.Write(&out))

	if out.GetCounter() != nil {
		return out.GetCounter().GetValue()
	}

	return out.GetGauge().GetValue()
}

func TestRecordStage(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	m.RecordStage("translation", metrics.OutcomeSuccess, "none", 2*time.Second)
	m.RecordStage("translation", metrics.OutcomeError, "translation_failed", time.Second)
	m.RecordStage("synthesis", metrics.OutcomeError, "synthesis_incomplete", time.Second)

	assert.InDelta(t, 1, readValue(t, m.StageErrors.WithLabelValues("translation", "translation_failed")), 0)

	families, err := registry.Gather()
	require.NoError(t, err)

	series := map[string]int{}
	for _, family := range families {
		series[family.GetName()] = len(family.GetMetric())
	}

	assert.Equal(t, 3, series["vietforeign_stage_duration_seconds"])
	assert.Equal(t, 2, series["vietforeign_stage_errors_total"])
}

func TestGaugesAndCounters(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())

	m.RecordUpload("mp3", 1024)
	m.RecordUpload("mp3", 1024)
	m.SetStoreSizes(3, 2)
	m.SetInFlight(4)
	m.RecordEvent("voice.converted", nil)
	m.RecordEvent("voice.converted", errors.New("broker down"))

	assert.InDelta(t, 2, readValue(t, m.Uploads.WithLabelValues("mp3")), 0)
	assert.InDelta(t, 2048, readValue(t, m.UploadBytes), 0)
	assert.InDelta(t, 3, readValue(t, m.Artifacts), 0)
	assert.InDelta(t, 2, readValue(t, m.Sessions), 0)
	assert.InDelta(t, 4, readValue(t, m.InFlight), 0)
	assert.InDelta(t, 1, readValue(t, m.EventsPublish.WithLabelValues("voice.converted", "error")), 0)
}

func TestServerEndpoints(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.RecordUpload("wav", 10)

	server := metrics.NewServer(":0", registry, func() map[string]bool {
		return map[string]bool{"asr": true, "translation": false}
	}, newTestLogger(t))

	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(httpServer.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status       string          `json:"status"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Capabilities["translation"])
	assert.True(t, body.Capabilities["asr"])
}

func TestServer_ServeStatic(t *testing.T) {
	t.Parallel()

	staticDir := t.TempDir()
	convertedDir := filepath.Join(staticDir, "converted")
	require.NoError(t, os.MkdirAll(convertedDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(convertedDir, "converted_ab12cd34_fr.wav"), []byte("RIFFdata"), 0o600))

	server := metrics.NewServer(":0", nil, nil, newTestLogger(t))
	server.ServeStatic("/static", staticDir)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"converted file", "/static/converted/converted_ab12cd34_fr.wav", http.StatusOK, "RIFFdata"},
		{"missing file", "/static/converted/nope.wav", http.StatusNotFound, ""},
		{"directory listing", "/static/converted/", http.StatusNotFound, ""},
		{"metrics not mounted", "/metrics", http.StatusNotFound, ""},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			resp, err := http.Get(httpServer.URL + testCase.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, testCase.status, resp.StatusCode)

			if testCase.body != "" {
				body, readErr := io.ReadAll(resp.Body)
				require.NoError(t, readErr)
				assert.Equal(t, testCase.body, string(body))
			}
		})
	}
}
