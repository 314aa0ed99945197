// Benchmark tool for scoring a transaction monitor against a generated dataset.
//
// Usage:
//
//	go run ./cmd/benchmark -csv sample-data/transactions.csv -url http://localhost:8080
//	go run ./cmd/benchmark -csv sample-data/transactions.csv -local
//
// This tool:
//  1. Reads transactions.csv as written by fraudgen (with is_fraud labels)
//  2. Sends each transaction to a monitor's POST /evaluate, or with -local
//     applies the alert threshold to the generated fraud probability
//  3. Compares the verdict (ALRT/NALT) with the fraud label
//  4. Calculates precision, recall, F1-score and the confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/fraudgen/internal/alerts"
	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/export"
)

// EvaluateRequest is the request body sent to the monitor.
type EvaluateRequest struct {
	Type     string         `json:"type"`
	Debtor   Party          `json:"debtor"`
	Creditor Party          `json:"creditor"`
	Amount   Amount         `json:"amount"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Party struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
}

type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// EvaluateResponse is the verdict returned by the monitor.
type EvaluateResponse struct {
	EvaluationID string   `json:"evaluationId"`
	Status       string   `json:"status"` // "ALRT" or "NALT"
	Score        float64  `json:"score"`
	Reasons      []string `json:"reasons"`
}

// Verdicts
const (
	StatusAlert   = "ALRT"
	StatusNoAlert = "NALT"
)

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud detected as ALRT
	FalsePositives int64 // Non-fraud detected as ALRT
	TrueNegatives  int64 // Non-fraud detected as NALT
	FalseNegatives int64 // Fraud detected as NALT (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// evaluator returns a verdict for one transaction.
type evaluator func(tx *domain.Transaction) (*EvaluateResponse, error)

func main() {
	csvPath := flag.String("csv", "", "Path to a generated transactions.csv")
	baseURL := flag.String("url", "http://localhost:8080", "Monitor base URL")
	local := flag.Bool("local", false, "Score with the alert threshold instead of calling a monitor")
	threshold := flag.Float64("threshold", alerts.DefaultThreshold, "Alert threshold for -local")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv sample-data/transactions.csv [-url http://localhost:8080 | -local]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            FRAUDGEN BENCHMARK - Labelled Replay               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	if *local {
		fmt.Printf("Mode:        local (threshold %.2f)\n", *threshold)
	} else {
		fmt.Printf("Monitor URL: %s\n", *baseURL)
	}
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Println()

	var eval evaluator
	if *local {
		d := alerts.NewDeriver(nil)
		d.Threshold = *threshold
		eval = localEvaluator(d)
	} else {
		if err := checkHealth(*baseURL); err != nil {
			fmt.Printf("ERROR: monitor not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		fmt.Println("✓ Monitor is healthy")
		client := &http.Client{Timeout: 10 * time.Second}
		eval = func(tx *domain.Transaction) (*EvaluateResponse, error) {
			return evaluateTransaction(client, *baseURL, tx)
		}
	}

	fmt.Printf("\nReading transactions from %s...\n", *csvPath)
	transactions, err := readTransactions(*csvPath, *limit, *fraudOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("ERROR: no transactions to replay")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, eval, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readTransactions(path string, limit int, fraudOnly bool) ([]domain.Transaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	all, err := export.ReadTransactions(file)
	if err != nil {
		return nil, err
	}

	transactions := all[:0]
	for _, tx := range all {
		if fraudOnly && !tx.IsFraud {
			continue
		}
		transactions = append(transactions, tx)
		if limit > 0 && len(transactions) >= limit {
			break
		}
	}
	return transactions, nil
}

func localEvaluator(d *alerts.Deriver) evaluator {
	return func(tx *domain.Transaction) (*EvaluateResponse, error) {
		resp := &EvaluateResponse{
			EvaluationID: alerts.AlertID(tx.TransactionID),
			Status:       StatusNoAlert,
			Score:        tx.FraudProbability,
		}
		if d.ShouldAlert(tx) {
			resp.Status = StatusAlert
			resp.Reasons = []string{alerts.Description(d.Level(tx.FraudProbability))}
		}
		return resp, nil
	}
}

func runBenchmark(transactions []domain.Transaction, eval evaluator, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan *domain.Transaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for tx := range work {
				start := time.Now()
				result, err := eval(tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.TransactionID, err)
					}
					continue
				}

				if tx.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				predicted := result.Status == StatusAlert
				actual := tx.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-11s | %-17s | Amount: $%10.2f | %-16s | Fraud: %-5v | Verdict: %-4s (%.2f)\n",
						status,
						tx.TransactionID,
						tx.MerchantCategory,
						tx.Amount,
						tx.Location,
						tx.IsFraud,
						result.Status,
						result.Score,
					)
				}
			}
		}()
	}

	for i := range transactions {
		work <- &transactions[i]
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateTransaction(client *http.Client, baseURL string, tx *domain.Transaction) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		Type: string(tx.MerchantCategory),
		Debtor: Party{
			ID:        tx.UserID,
			AccountID: tx.CardID,
		},
		Creditor: Party{
			ID:        tx.MerchantID,
			AccountID: tx.MerchantID + "-acc",
		},
		Amount: Amount{
			Value:    tx.Amount,
			Currency: tx.Currency,
		},
		Metadata: map[string]any{
			"transaction_id":   tx.TransactionID,
			"transaction_time": tx.TransactionTime.Format(time.RFC3339),
			"location":         string(tx.Location),
			"device_type":      tx.DeviceType,
			"source_system":    tx.SourceSystem,
		},
	}
	if tx.SecondsSincePrevTx != nil {
		req.Metadata["seconds_since_prev_tx"] = *tx.SecondsSincePrevTx
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    ALRT        NALT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of alerts, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
