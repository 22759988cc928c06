// Benchmark tool for load-testing Aegis and measuring cache effectiveness.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -patients 500 -reads 10
//
// This tool:
//   1. Creates a set of patient records across one or more organizations
//   2. Replays repeated reads against them with concurrent workers
//   3. Reports latency percentiles for first reads (cold) vs repeat reads (warm)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CreateRequest is the Aegis API request format for POST /patients.
type CreateRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PatientResponse is the subset of the API response the benchmark needs.
type PatientResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalCreates int64
	TotalReads   int64
	TotalErrors  int64

	mu           sync.Mutex
	coldReadUs   []int64
	warmReadUs   []int64
	createUs     []int64
}

func (m *Metrics) recordCreate(d time.Duration) {
	m.mu.Lock()
	m.createUs = append(m.createUs, d.Microseconds())
	m.mu.Unlock()
}

func (m *Metrics) recordRead(d time.Duration, cold bool) {
	m.mu.Lock()
	if cold {
		m.coldReadUs = append(m.coldReadUs, d.Microseconds())
	} else {
		m.warmReadUs = append(m.warmReadUs, d.Microseconds())
	}
	m.mu.Unlock()
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Aegis base URL")
	orgCount := flag.Int("orgs", 3, "Number of organizations to spread load across")
	patientCount := flag.Int("patients", 500, "Number of patients to create")
	readsPer := flag.Int("reads", 10, "Repeat reads per patient")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            AEGIS BENCHMARK - Cache Effectiveness              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nAegis URL:   %s\n", *baseURL)
	fmt.Printf("Orgs:        %d\n", *orgCount)
	fmt.Printf("Patients:    %d\n", *patientCount)
	fmt.Printf("Reads/each:  %d\n", *readsPer)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	// Check Aegis is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Aegis not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Aegis is running:")
		fmt.Println("  go run cmd/aegis/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Aegis is healthy")

	metrics := &Metrics{}
	startTime := time.Now()

	// Phase 1: create patients
	fmt.Printf("\nCreating %d patients across %d organizations...\n", *patientCount, *orgCount)
	created := runCreates(*baseURL, *orgCount, *patientCount, *workers, metrics)
	fmt.Printf("✓ Created %d patients\n", len(created))

	// Phase 2: replay reads
	fmt.Printf("\nReplaying %d reads per patient with %d workers...\n", *readsPer, *workers)
	runReads(*baseURL, created, *readsPer, *workers, metrics)

	printResults(metrics, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

type createdPatient struct {
	ID  string
	Org string
}

func runCreates(baseURL string, orgCount, patientCount, numWorkers int, metrics *Metrics) []createdPatient {
	work := make(chan int, 100)
	results := make(chan createdPatient, patientCount)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for n := range work {
				org := fmt.Sprintf("org-%03d", n%orgCount)
				req := CreateRequest{
					FirstName: fmt.Sprintf("Patient%d", n),
					LastName:  "Benchmark",
					Email:     fmt.Sprintf("patient%d@example.com", n),
				}

				start := time.Now()
				p, err := createPatient(client, baseURL, org, req)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalCreates, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}
				metrics.recordCreate(elapsed)
				results <- createdPatient{ID: p.ID, Org: org}
			}
		}()
	}

	for n := 0; n < patientCount; n++ {
		work <- n
	}
	close(work)
	wg.Wait()
	close(results)

	var created []createdPatient
	for p := range results {
		created = append(created, p)
	}
	return created
}

func runReads(baseURL string, created []createdPatient, readsPer, numWorkers int, metrics *Metrics) {
	type readJob struct {
		patient createdPatient
		cold    bool
	}

	work := make(chan readJob, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for job := range work {
				start := time.Now()
				err := getPatient(client, baseURL, job.patient.Org, job.patient.ID)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalReads, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}
				metrics.recordRead(elapsed, job.cold)
			}
		}()
	}

	// Cold pass first so warm reads actually hit the cache, then shuffled
	// warm passes.
	for _, p := range created {
		work <- readJob{patient: p, cold: true}
	}

	warm := make([]createdPatient, 0, len(created)*(readsPer-1))
	for r := 1; r < readsPer; r++ {
		warm = append(warm, created...)
	}
	rand.Shuffle(len(warm), func(i, j int) { warm[i], warm[j] = warm[j], warm[i] })
	for _, p := range warm {
		work <- readJob{patient: p, cold: false}
	}

	close(work)
	wg.Wait()
}

func createPatient(client *http.Client, baseURL, org string, req CreateRequest) (*PatientResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/patients", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Organization-ID", org)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PatientResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func getPatient(client *http.Client, baseURL, org, id string) error {
	httpReq, err := http.NewRequest(http.MethodGet, baseURL+"/patients/"+id, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("X-Organization-ID", org)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func percentile(sorted []int64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return float64(sorted[idx]) / 1000.0
}

func printLatencies(label string, us []int64) {
	if len(us) == 0 {
		fmt.Printf("   %-12s (no samples)\n", label)
		return
	}
	sorted := append([]int64(nil), us...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	avg := float64(sum) / float64(len(sorted)) / 1000.0

	fmt.Printf("   %-12s avg %.2fms  p50 %.2fms  p95 %.2fms  p99 %.2fms  (n=%d)\n",
		label, avg,
		percentile(sorted, 0.50),
		percentile(sorted, 0.95),
		percentile(sorted, 0.99),
		len(sorted),
	)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TOTALS\n")
	fmt.Printf("   Creates:  %d\n", m.TotalCreates)
	fmt.Printf("   Reads:    %d\n", m.TotalReads)
	fmt.Printf("   Errors:   %d\n", m.TotalErrors)

	fmt.Printf("\n⏱  LATENCY\n")
	m.mu.Lock()
	printLatencies("create", m.createUs)
	printLatencies("cold read", m.coldReadUs)
	printLatencies("warm read", m.warmReadUs)
	m.mu.Unlock()

	total := m.TotalCreates + m.TotalReads
	fmt.Printf("\n🚀 THROUGHPUT\n")
	fmt.Printf("   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if total > 0 {
		fmt.Printf("   Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	fmt.Println()
}
