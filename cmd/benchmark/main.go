// Benchmark tool for measuring triage detection quality against labelled text.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/labelled.csv -url http://localhost:8080
//
// The CSV has a header row with the columns text and expected. expected
// holds the diseases the text should be classified as, separated by ";",
// or is empty when nothing should match. The tool posts every text to
// /api/process, compares the detected diseases with the labels and prints
// per-disease precision, recall and F1 together with request latency.
//
// Run the server with TRIAGE_VELOCITY_MAX_SUBMISSIONS=0, otherwise the
// submission limit rejects most of the run.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sample is one labelled row.
type Sample struct {
	Line     int
	Text     string
	Expected []string
}

// ProcessRequest is the triage API request format.
type ProcessRequest struct {
	InputText string `json:"inputText"`
}

// ProcessResponse is the subset of the triage API response used here.
type ProcessResponse struct {
	BatchID string `json:"batchId"`
	Records []struct {
		Disease string `json:"disease"`
	} `json:"records"`
}

// Counts is the confusion tally for one disease.
type Counts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Precision is TP / (TP + FP), 0 when nothing was predicted.
func (c Counts) Precision() float64 {
	if c.TruePositives+c.FalsePositives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
}

// Recall is TP / (TP + FN), 0 when the disease never occurs.
func (c Counts) Recall() float64 {
	if c.TruePositives+c.FalseNegatives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu sync.Mutex

	ByDisease    map[string]*Counts
	ExactMatches int
	Processed    int
	Errors       int
	Latencies    []time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{ByDisease: make(map[string]*Counts)}
}

// Observe scores one prediction against its labels.
func (m *Metrics) Observe(expected, predicted []string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Processed++
	m.Latencies = append(m.Latencies, latency)

	want := toSet(expected)
	got := toSet(predicted)

	for d := range got {
		if want[d] {
			m.counts(d).TruePositives++
		} else {
			m.counts(d).FalsePositives++
		}
	}
	for d := range want {
		if !got[d] {
			m.counts(d).FalseNegatives++
		}
	}
	if len(want) == len(got) && sameKeys(want, got) {
		m.ExactMatches++
	}
}

// Fail records a request that could not be scored.
func (m *Metrics) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors++
}

func (m *Metrics) counts(disease string) *Counts {
	c, ok := m.ByDisease[disease]
	if !ok {
		c = &Counts{}
		m.ByDisease[disease] = c
	}
	return c
}

// Percentile returns the latency at q in [0,1].
func (m *Metrics) Percentile(q float64) time.Duration {
	if len(m.Latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), m.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Triage base URL")
	limit := flag.Int("limit", 0, "Maximum samples to process (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each mismatched sample")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labelled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("TRIAGE BENCHMARK")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Triage URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: triage not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  TRIAGE_VELOCITY_MAX_SUBMISSIONS=0 go run ./cmd/triage serve")
		os.Exit(1)
	}
	fmt.Println("triage is healthy")

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	samples, err := readSamples(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %d samples\n", len(samples))

	fmt.Printf("\nrunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	metrics := runBenchmark(samples, *baseURL, *workers, *verbose)
	duration := time.Since(start)

	printResults(os.Stdout, metrics, duration)
}

func checkHealth(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readSamples(r io.Reader, limit int) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	textCol, ok := colIndex["text"]
	if !ok {
		return nil, errors.New("missing text column")
	}
	expectedCol, ok := colIndex["expected"]
	if !ok {
		return nil, errors.New("missing expected column")
	}

	var samples []Sample
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		if textCol >= len(record) {
			continue
		}

		var expected []string
		if expectedCol < len(record) {
			expected = splitLabels(record[expectedCol])
		}

		samples = append(samples, Sample{
			Line:     line,
			Text:     record[textCol],
			Expected: expected,
		})

		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	return samples, nil
}

func splitLabels(s string) []string {
	var labels []string
	for _, part := range strings.Split(s, ";") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}

func runBenchmark(samples []Sample, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := newMetrics()
	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan Sample, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				predicted, err := process(client, baseURL, s.Text)
				elapsed := time.Since(start)

				if err != nil {
					metrics.Fail()
					if verbose {
						fmt.Printf("ERROR line %d: %v\n", s.Line, err)
					}
					continue
				}

				metrics.Observe(s.Expected, predicted, elapsed)

				if verbose && !sameKeys(toSet(s.Expected), toSet(predicted)) {
					fmt.Printf("MISS line %d | expected %v | detected %v | %q\n",
						s.Line, s.Expected, predicted, truncate(s.Text, 60))
				}
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)

	wg.Wait()
	return metrics
}

func process(client *http.Client, baseURL, text string) ([]string, error) {
	body, err := json.Marshal(ProcessRequest{InputText: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/process", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	diseases := make([]string, len(result.Records))
	for i, r := range result.Records {
		diseases[i] = strings.ToLower(r.Disease)
	}
	return diseases, nil
}

func printResults(w io.Writer, m *Metrics, duration time.Duration) {
	fmt.Fprintln(w, "\nBENCHMARK RESULTS")

	fmt.Fprintf(w, "\nDATASET\n")
	fmt.Fprintf(w, "   Processed:      %d\n", m.Processed)
	fmt.Fprintf(w, "   Errors:         %d\n", m.Errors)
	if m.Processed > 0 {
		fmt.Fprintf(w, "   Exact matches:  %d (%.2f%%)\n", m.ExactMatches, 100*float64(m.ExactMatches)/float64(m.Processed))
	}

	names := make([]string, 0, len(m.ByDisease))
	for name := range m.ByDisease {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\nPER DISEASE\n")
	fmt.Fprintf(w, "   %-16s %5s %5s %5s %10s %10s %8s\n", "disease", "TP", "FP", "FN", "precision", "recall", "F1")
	for _, name := range names {
		c := m.ByDisease[name]
		fmt.Fprintf(w, "   %-16s %5d %5d %5d %9.2f%% %9.2f%% %8.3f\n",
			name, c.TruePositives, c.FalsePositives, c.FalseNegatives,
			100*c.Precision(), 100*c.Recall(), c.F1())
	}

	fmt.Fprintf(w, "\nLATENCY\n")
	fmt.Fprintf(w, "   p50:   %s\n", m.Percentile(0.50))
	fmt.Fprintf(w, "   p95:   %s\n", m.Percentile(0.95))
	fmt.Fprintf(w, "   p99:   %s\n", m.Percentile(0.99))
	fmt.Fprintf(w, "   Total: %s\n", duration.Round(time.Millisecond))
	if duration > 0 {
		fmt.Fprintf(w, "   Throughput: %.1f req/s\n", float64(m.Processed+m.Errors)/duration.Seconds())
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func sameKeys(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
