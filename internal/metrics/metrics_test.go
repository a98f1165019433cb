package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("a")
	IncStart("a")
	IncStop("a")
	IncKill("a")
	IncCrash("a")
	IncRestart("a")
	IncCommand("a", true)
	IncCommand("a", false)
	IncOutputLine("a")
	SetRunning(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"gsl_server_starts_total":       false,
		"gsl_server_stops_total":        false,
		"gsl_server_kills_total":        false,
		"gsl_server_crashes_total":      false,
		"gsl_server_restarts_total":     false,
		"gsl_server_commands_total":     false,
		"gsl_server_output_lines_total": false,
		"gsl_server_running":            false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
		if n == "gsl_server_commands_total" && len(mf.GetMetric()) != 2 {
			t.Fatalf("expected delivered and failed series, got %d", len(mf.GetMetric()))
		}
		if n == "gsl_server_running" && mf.GetMetric()[0].GetGauge().GetValue() != 2 {
			t.Fatalf("running gauge = %v", mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerForServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(prometheus.NewCounter(prometheus.CounterOpts{Name: "gsl_test_total", Help: "t"})); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "gsl_test_total") {
		t.Fatalf("unexpected body: %s", body)
	}
}
