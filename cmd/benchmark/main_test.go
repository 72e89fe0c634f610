package main

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadSamples(t *testing.T) {
	data := `text,expected
"saya demam dan batuk",flu
"mencret dan kembung",diare; Maag
"cuaca cerah",
`

	t.Run("All", func(t *testing.T) {
		samples, err := readSamples(strings.NewReader(data), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(samples) != 3 {
			t.Fatalf("expected 3 samples, got %d", len(samples))
		}
		if got := samples[1].Expected; len(got) != 2 || got[0] != "diare" || got[1] != "maag" {
			t.Errorf("expected [diare maag], got %v", got)
		}
		if len(samples[2].Expected) != 0 {
			t.Errorf("expected no labels, got %v", samples[2].Expected)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		samples, _ := readSamples(strings.NewReader(data), 2)
		if len(samples) != 2 {
			t.Errorf("expected 2 samples, got %d", len(samples))
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		if _, err := readSamples(strings.NewReader("text\nfoo\n"), 0); err == nil {
			t.Error("expected error for missing expected column")
		}
	})
}

func TestMetricsObserve(t *testing.T) {
	m := newMetrics()
	m.Observe([]string{"flu"}, []string{"flu"}, time.Millisecond)
	m.Observe([]string{"diare", "maag"}, []string{"diare"}, 2*time.Millisecond)
	m.Observe(nil, []string{"flu"}, 3*time.Millisecond)
	m.Fail()

	if m.Processed != 3 || m.Errors != 1 {
		t.Errorf("expected 3 processed and 1 error, got %d/%d", m.Processed, m.Errors)
	}
	if m.ExactMatches != 1 {
		t.Errorf("expected 1 exact match, got %d", m.ExactMatches)
	}

	flu := m.ByDisease["flu"]
	if flu.TruePositives != 1 || flu.FalsePositives != 1 || flu.FalseNegatives != 0 {
		t.Errorf("unexpected flu counts: %+v", *flu)
	}
	if math.Abs(flu.Precision()-0.5) > 1e-9 || flu.Recall() != 1 {
		t.Errorf("unexpected flu precision/recall: %v/%v", flu.Precision(), flu.Recall())
	}

	maag := m.ByDisease["maag"]
	if maag.FalseNegatives != 1 || maag.Recall() != 0 || maag.F1() != 0 {
		t.Errorf("unexpected maag counts: %+v", *maag)
	}

	if p := m.Percentile(0.5); p != 2*time.Millisecond {
		t.Errorf("expected p50 2ms, got %s", p)
	}
}

func TestRunBenchmark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/process" || r.Header.Get("Accept") != "application/json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req ProcessRequest
		json.NewDecoder(r.Body).Decode(&req)

		var records []map[string]string
		if strings.Contains(req.InputText, "demam") {
			records = append(records, map[string]string{"disease": "flu"})
		}
		if strings.Contains(req.InputText, "gagal") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"records": records})
	}))
	defer srv.Close()

	samples := []Sample{
		{Line: 2, Text: "demam", Expected: []string{"flu"}},
		{Line: 3, Text: "cerah", Expected: nil},
		{Line: 4, Text: "gagal", Expected: []string{"flu"}},
	}

	m := runBenchmark(samples, srv.URL, 2, false)
	if m.Processed != 2 || m.Errors != 1 {
		t.Fatalf("expected 2 processed and 1 error, got %d/%d", m.Processed, m.Errors)
	}
	if m.ExactMatches != 2 {
		t.Errorf("expected 2 exact matches, got %d", m.ExactMatches)
	}

	var out bytes.Buffer
	printResults(&out, m, time.Second)
	if !strings.Contains(out.String(), "flu") {
		t.Errorf("expected flu row in report:\n%s", out.String())
	}
}
