// Package metrics collects in-process turn statistics served by /stats.
package metrics

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"gonum.org/v1/gonum/stat"
)

// latencyWindow bounds the number of latency samples kept.
const latencyWindow = 1000

// Collector collects turn metrics. Safe for concurrent use.
type Collector struct {
	mu sync.RWMutex

	// Counters
	turnCount   int64
	turnErrors  int64
	itemsServed int64
	toolCalls   map[string]int64

	// Latency ring
	latency []float64
	next    int

	// Distinct clients by hashed client ID
	clients *roaring.Bitmap
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		toolCalls: make(map[string]int64),
		latency:   make([]float64, 0, latencyWindow),
		clients:   roaring.New(),
	}
}

// RecordTurn records one turn outcome.
func (c *Collector) RecordTurn(clientID string, duration time.Duration, items int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turnCount++
	if err != nil {
		c.turnErrors++
	}
	c.itemsServed += int64(items)
	c.clients.Add(hashClient(clientID))

	sample := float64(duration)
	if len(c.latency) < latencyWindow {
		c.latency = append(c.latency, sample)
		return
	}
	c.latency[c.next] = sample
	c.next = (c.next + 1) % latencyWindow
}

// RecordToolCall counts one tool invocation.
func (c *Collector) RecordToolCall(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCalls[name]++
}

// Summary represents a snapshot of collected metrics.
type Summary struct {
	TurnCount       int64            `json:"turn_count"`
	TurnErrors      int64            `json:"turn_errors"`
	ItemsServed     int64            `json:"items_served"`
	DistinctClients uint64           `json:"distinct_clients"`
	ToolCalls       map[string]int64 `json:"tool_calls"`
	Latency         LatencySummary   `json:"latency"`
}

// LatencySummary holds turn latency statistics over the sample window.
type LatencySummary struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
}

// Summary returns a snapshot of collected metrics.
func (c *Collector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make(map[string]int64, len(c.toolCalls))
	for name, n := range c.toolCalls {
		tools[name] = n
	}
	return Summary{
		TurnCount:       c.turnCount,
		TurnErrors:      c.turnErrors,
		ItemsServed:     c.itemsServed,
		DistinctClients: c.clients.GetCardinality(),
		ToolCalls:       tools,
		Latency:         summarizeLatency(c.latency),
	}
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turnCount = 0
	c.turnErrors = 0
	c.itemsServed = 0
	c.toolCalls = make(map[string]int64)
	c.latency = c.latency[:0]
	c.next = 0
	c.clients.Clear()
}

func summarizeLatency(samples []float64) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	quantile := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, sorted, nil))
	}
	return LatencySummary{
		Mean: time.Duration(stat.Mean(sorted, nil)),
		P50:  quantile(0.50),
		P95:  quantile(0.95),
		P99:  quantile(0.99),
	}
}

func hashClient(clientID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return h.Sum32()
}
