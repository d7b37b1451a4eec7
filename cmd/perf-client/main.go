package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock-contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	baseURL        = "http://localhost:8080"
	fixedWorkers   = 50
	fixedRPSTarget = 500
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedStock     = 50000
)

func main() {
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	expeditionID, itemID, err := createExpeditionWithStock(httpClient, fixedStock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create expedition: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created expedition %d with item %d (%d units)\n", expeditionID, itemID, fixedStock)

	fmt.Println("==========================================")
	fmt.Println("Expedition consume load test")
	fmt.Println("==========================================")
	fmt.Printf("Expedition ID : %d\n", expeditionID)
	fmt.Printf("Target RPS    : %d\n", rps)
	fmt.Printf("Duration      : %v\n", duration)
	fmt.Println("==========================================")

	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled → exit
					return
				}
				doRequest(httpClient, expeditionID, itemID, worker, &result, latencyChan)
			}
		}(i)
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	wg.Wait()
	close(latencyChan)

	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Println("Load test results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed          : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Total requests   : %d\n", result.TotalRequests)
	fmt.Printf("Successful       : %d\n", result.SuccessCount)
	fmt.Printf("Failed           : %d\n", result.ErrorCount)

	actualRPS := float64(result.SuccessCount) / totalDur.Seconds()
	successRate := float64(result.SuccessCount) / float64(result.TotalRequests) * 100

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("Actual RPS       : %.2f\n", actualRPS)
	fmt.Printf("Success rate     : %.2f%%\n", successRate)
	fmt.Printf("Avg latency      : %v\n", avgLatency)
	fmt.Printf("P95 latency      : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	fmt.Println("==========================================")
	fmt.Println("Data consistency check")
	fmt.Println("==========================================")
	if err := verifyDataConsistency(httpClient, expeditionID, result.SuccessCount); err != nil {
		fmt.Printf("Consistency check failed: %v\n", err)
	} else {
		fmt.Println("Data consistent")
	}
	fmt.Println("==========================================")
}

// createExpeditionWithStock creates an expedition and commits a single item
// with the given stock.
func createExpeditionWithStock(httpClient *http.Client, stock int) (int64, int64, error) {
	expReq := map[string]interface{}{
		"name":     fmt.Sprintf("perf-%d", time.Now().Unix()),
		"owner_id": "perf-client",
		"deadline": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}
	var expResp struct {
		ID int64 `json:"id"`
	}
	if err := postJSON(httpClient, baseURL+"/expeditions", expReq, &expResp); err != nil {
		return 0, 0, fmt.Errorf("create expedition failed: %w", err)
	}

	itemsReq := map[string]interface{}{
		"items": []map[string]interface{}{
			{"product": "perf-berries", "grade": "A", "quantity": stock, "unit_price_cents": 100},
		},
	}
	var itemsResp struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	url := fmt.Sprintf("%s/expeditions/%d/items", baseURL, expResp.ID)
	if err := postJSON(httpClient, url, itemsReq, &itemsResp); err != nil {
		return 0, 0, fmt.Errorf("commit items failed: %w", err)
	}
	if len(itemsResp.Items) == 0 {
		return 0, 0, fmt.Errorf("no items in response")
	}

	return expResp.ID, itemsResp.Items[0].ID, nil
}

// doRequest performs a single consume call and collects metrics.
func doRequest(httpClient *http.Client, expeditionID, itemID int64, worker int, result *PerfResult, latencyChan chan<- time.Duration) {
	body := map[string]interface{}{
		"item_id":            itemID,
		"real_identifier":    fmt.Sprintf("load-user-%d", worker),
		"quantity":           1,
		"upfront_paid_cents": 100,
		"payment_term":       "upfront",
	}

	url := fmt.Sprintf("%s/expeditions/%d/consume", baseURL, expeditionID)

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	var resp struct {
		Pseudonym string `json:"pseudonym"`
	}
	err := postJSON(httpClient, url, body, &resp)
	latency := time.Since(start)

	if err != nil || resp.Pseudonym == "" {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}

	atomic.AddInt64(&result.SuccessCount, 1)
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
}

func postJSON(httpClient *http.Client, url string, body interface{}, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}

// verifyDataConsistency checks if the consumed count matches the database state
func verifyDataConsistency(httpClient *http.Client, expeditionID, expectedConsumed int64) error {
	url := fmt.Sprintf("%s/expeditions/%d/summary", baseURL, expeditionID)

	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var summary struct {
		TotalCommitted int64 `json:"total_committed"`
		TotalConsumed  int64 `json:"total_consumed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return fmt.Errorf("failed to decode summary: %w", err)
	}

	fmt.Printf("Expedition ID       : %d\n", expeditionID)
	fmt.Printf("Committed stock     : %d\n", summary.TotalCommitted)
	fmt.Printf("Consumed (DB)       : %d\n", summary.TotalConsumed)
	fmt.Printf("Consumed (client)   : %d\n", expectedConsumed)
	fmt.Printf("Remaining stock     : %d\n", summary.TotalCommitted-summary.TotalConsumed)

	if summary.TotalConsumed != expectedConsumed {
		return fmt.Errorf("mismatch: DB=%d, client=%d, diff=%d",
			summary.TotalConsumed, expectedConsumed, summary.TotalConsumed-expectedConsumed)
	}

	if summary.TotalConsumed > summary.TotalCommitted {
		return fmt.Errorf("over-consumption: consumed=%d > committed=%d",
			summary.TotalConsumed, summary.TotalCommitted)
	}

	return nil
}
