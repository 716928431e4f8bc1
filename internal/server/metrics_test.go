package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric returns the sample of family name whose labels include want.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			return m
		}
	}
	return nil
}

func Test_Metrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.srv.metrics.ObserveChat("ok", 12)

	w := env.do(t, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `roomrag_chat_requests_total{outcome="ok"} 1`) {
		t.Errorf("chat counter missing from exposition:\n%s", w.Body.String())
	}
}

func Test_Metrics_ChatObservations(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveChat("ok", 40)
	m.ObserveChat("ok", 2)
	m.ObserveChat("no_evidence", 0)

	if got := findMetric(t, reg, "roomrag_chat_requests_total", map[string]string{"outcome": "ok"}); got == nil || got.GetCounter().GetValue() != 2 {
		t.Errorf("ok outcomes: got %v", got)
	}
	if got := findMetric(t, reg, "roomrag_chat_requests_total", map[string]string{"outcome": "no_evidence"}); got == nil || got.GetCounter().GetValue() != 1 {
		t.Errorf("no_evidence outcomes: got %v", got)
	}
	if got := findMetric(t, reg, "roomrag_chat_tokens_total", nil); got == nil || got.GetCounter().GetValue() != 42 {
		t.Errorf("tokens: got %v", got)
	}
}

func Test_Metrics_IngestionObservations(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveIngestion("processed", 7)
	m.ObserveIngestion("failed", 0)

	if got := findMetric(t, reg, "roomrag_ingestion_jobs_total", map[string]string{"outcome": "failed"}); got == nil || got.GetCounter().GetValue() != 1 {
		t.Errorf("failed jobs: got %v", got)
	}
	got := findMetric(t, reg, "roomrag_ingestion_chunks", nil)
	if got == nil || got.GetHistogram().GetSampleCount() != 1 || got.GetHistogram().GetSampleSum() != 7 {
		t.Errorf("chunk histogram: got %v", got)
	}
}

func Test_Metrics_HTTPByRoutePattern(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	room := env.createRoom(t, "hr")

	for range 3 {
		env.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d", room.ID), nil, "")
	}
	env.do(t, http.MethodGet, "/api/rooms/999", nil, "")
	env.do(t, http.MethodGet, "/nowhere", nil, "")

	ok := findMetric(t, env.reg, "roomrag_http_requests_total",
		map[string]string{"handler": "GET /api/rooms/{id}", "code": "200"})
	if ok == nil || ok.GetCounter().GetValue() != 3 {
		t.Errorf("200s by pattern: got %v", ok)
	}
	missing := findMetric(t, env.reg, "roomrag_http_requests_total",
		map[string]string{"handler": "GET /api/rooms/{id}", "code": "404"})
	if missing == nil || missing.GetCounter().GetValue() != 1 {
		t.Errorf("404s by pattern: got %v", missing)
	}
	if findMetric(t, env.reg, "roomrag_http_requests_total", map[string]string{"handler": "unmatched"}) == nil {
		t.Error("unmatched requests should be counted under handler=unmatched")
	}
}
