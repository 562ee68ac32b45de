// Benchmark tool for load-testing the underwriting API.
//
// Usage:
//
//	go run ./cmd/benchmark -csv proposals.csv -url http://localhost:8080
//	go run ./cmd/benchmark -generate 5000 -workers 20
//
// This tool:
//  1. Reads labelled proposals from CSV, or generates synthetic ones
//  2. Sends each proposal to POST /underwriting/evaluate
//  3. Compares the STP decision with the expected label when one is present
//  4. Reports agreement, decision mix, and latency percentiles
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Proposal is the request body for POST /underwriting/evaluate.
type Proposal struct {
	ProposalID        string   `json:"proposal_id"`
	ProductType       string   `json:"product_type"`
	ApplicantAge      int      `json:"applicant_age"`
	ApplicantIncome   float64  `json:"applicant_income"`
	SumAssured        float64  `json:"sum_assured"`
	Premium           float64  `json:"premium"`
	BMI               *float64 `json:"bmi,omitempty"`
	OccupationRisk    *string  `json:"occupation_risk,omitempty"`
	IsSmoker          bool     `json:"is_smoker"`
	HasMedicalHistory bool     `json:"has_medical_history"`
}

// Case is one proposal plus its expected decision, if known.
type Case struct {
	Proposal Proposal
	Expected string
}

// EvaluateResponse holds the fields of the result the benchmark inspects.
type EvaluateResponse struct {
	STPDecision string `json:"stp_decision"`
	CaseType    int    `json:"case_type"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Pass     int64
	Fail     int64
	Referred int64 // case type 3
	Errors   int64

	Labelled int64
	Agreed   int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "CSV of proposals (header row required)")
	generate := flag.Int("generate", 0, "generate N synthetic proposals instead of reading CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Underwriter base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum proposals to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 1, "Random seed for generated proposals")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" && *generate <= 0 {
		fmt.Println("Usage: benchmark (-csv proposals.csv | -generate N) [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("Underwriter URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:       %s\n", *tenantID)
	fmt.Printf("Workers:         %d\n\n", *workers)

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: underwriter not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nStart it with: go run ./cmd/underwriter serve --seed-tenant", *tenantID)
		os.Exit(1)
	}

	var cases []Case
	var err error
	if *csvPath != "" {
		cases, err = readCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		cases = generateCases(rand.New(rand.NewSource(*seed)), *generate)
	}
	fmt.Printf("Loaded %d proposals\n", len(cases))

	start := time.Now()
	metrics := runBenchmark(cases, *baseURL, *tenantID, *workers, *verbose)
	printResults(metrics, time.Since(start))
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

// readCSV expects columns proposal_id, product_type, applicant_age,
// applicant_income, sum_assured, premium, is_smoker, has_medical_history and
// optionally bmi, occupation_risk, expected_decision.
func readCSV(path string, limit int) ([]Case, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var cases []Case
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		age, _ := strconv.Atoi(get(rec, "applicant_age"))
		income, _ := strconv.ParseFloat(get(rec, "applicant_income"), 64)
		sa, _ := strconv.ParseFloat(get(rec, "sum_assured"), 64)
		premium, _ := strconv.ParseFloat(get(rec, "premium"), 64)

		p := Proposal{
			ProposalID:        get(rec, "proposal_id"),
			ProductType:       get(rec, "product_type"),
			ApplicantAge:      age,
			ApplicantIncome:   income,
			SumAssured:        sa,
			Premium:           premium,
			IsSmoker:          get(rec, "is_smoker") == "true" || get(rec, "is_smoker") == "1",
			HasMedicalHistory: get(rec, "has_medical_history") == "true" || get(rec, "has_medical_history") == "1",
		}
		if v, err := strconv.ParseFloat(get(rec, "bmi"), 64); err == nil {
			p.BMI = &v
		}
		if v := get(rec, "occupation_risk"); v != "" {
			p.OccupationRisk = &v
		}

		cases = append(cases, Case{Proposal: p, Expected: strings.ToUpper(get(rec, "expected_decision"))})
		if limit > 0 && len(cases) >= limit {
			break
		}
	}
	return cases, nil
}

func generateCases(rng *rand.Rand, n int) []Case {
	products := []string{"term_life", "endowment", "ulip"}
	risks := []string{"low", "medium", "high"}

	cases := make([]Case, n)
	for i := range cases {
		bmi := 18 + rng.Float64()*18
		risk := risks[rng.Intn(len(risks))]
		cases[i] = Case{Proposal: Proposal{
			ProposalID:        fmt.Sprintf("BENCH-%06d", i),
			ProductType:       products[rng.Intn(len(products))],
			ApplicantAge:      18 + rng.Intn(55),
			ApplicantIncome:   float64(300000 + rng.Intn(5000000)),
			SumAssured:        float64(500000 + rng.Intn(15000000)),
			Premium:           float64(5000 + rng.Intn(100000)),
			BMI:               &bmi,
			OccupationRisk:    &risk,
			IsSmoker:          rng.Intn(5) == 0,
			HasMedicalHistory: rng.Intn(8) == 0,
		}}
	}
	return cases
}

func runBenchmark(cases []Case, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Case, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := evaluate(client, baseURL, tenantID, c.Proposal)
				metrics.observe(time.Since(start))

				if err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.Proposal.ProposalID, err)
					}
					continue
				}

				if result.STPDecision == "FAIL" {
					atomic.AddInt64(&metrics.Fail, 1)
				} else {
					atomic.AddInt64(&metrics.Pass, 1)
				}
				if result.CaseType == 3 {
					atomic.AddInt64(&metrics.Referred, 1)
				}
				if c.Expected != "" {
					atomic.AddInt64(&metrics.Labelled, 1)
					if c.Expected == result.STPDecision {
						atomic.AddInt64(&metrics.Agreed, 1)
					}
				}

				if verbose {
					fmt.Printf("%-14s | %-9s | age %2d | SA %12.0f | %-4s case %d\n",
						c.Proposal.ProposalID,
						c.Proposal.ProductType,
						c.Proposal.ApplicantAge,
						c.Proposal.SumAssured,
						result.STPDecision,
						result.CaseType,
					)
				}
			}
		}()
	}

	for _, c := range cases {
		work <- c
	}
	close(work)
	wg.Wait()

	return metrics
}

func evaluate(client *http.Client, baseURL, tenantID string, p Proposal) (*EvaluateResponse, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/underwriting/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)-1) * p)
	return sorted[i]
}

func printResults(m *Metrics, duration time.Duration) {
	total := m.Pass + m.Fail + m.Errors

	fmt.Println("\nRESULTS")
	fmt.Printf("   Processed:   %d\n", total)
	fmt.Printf("   PASS:        %d\n", m.Pass)
	fmt.Printf("   FAIL:        %d\n", m.Fail)
	fmt.Printf("   GCRP:        %d\n", m.Referred)
	fmt.Printf("   Errors:      %d\n", m.Errors)

	if m.Labelled > 0 {
		fmt.Printf("\nAGREEMENT WITH LABELS\n")
		fmt.Printf("   %d / %d (%.2f%%)\n", m.Agreed, m.Labelled, 100*float64(m.Agreed)/float64(m.Labelled))
	}

	m.mu.Lock()
	lat := slices.Clone(m.latencies)
	m.mu.Unlock()
	slices.Sort(lat)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Duration:    %v\n", duration.Round(time.Millisecond))
	if total > 0 {
		fmt.Printf("   Throughput:  %.2f proposals/sec\n", float64(total)/duration.Seconds())
		fmt.Printf("   p50:         %v\n", percentile(lat, 0.50).Round(time.Microsecond))
		fmt.Printf("   p95:         %v\n", percentile(lat, 0.95).Round(time.Microsecond))
		fmt.Printf("   p99:         %v\n", percentile(lat, 0.99).Round(time.Microsecond))
	}
	fmt.Println()
}
