package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dugoutai/dugout/config"
)

// Exported counters, served at /metrics alongside the in-process snapshot.
var (
	promRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dugout_requests_total",
		Help: "Chat requests processed, by outcome.",
	}, []string{"outcome"})
	promSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dugout_plan_steps_total",
		Help: "Plan steps executed, by step type and outcome.",
	}, []string{"type", "outcome"})
	promSandboxRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dugout_sandbox_runs_total",
		Help: "Sandboxed code executions, by outcome.",
	}, []string{"outcome"})
	promLLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dugout_llm_tokens_total",
		Help: "Completion tokens consumed, by model.",
	}, []string{"model"})
)

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Telemetry provides monitoring and cost tracking for the chat pipeline
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	// Chat request metrics
	TotalRequests         int64
	SuccessfulRequests    int64
	FailedRequests        int64
	AverageProcessingTime time.Duration

	// Plan step metrics
	StepExecutions   map[string]int64 // step type -> count
	StepSuccessRates map[string]float64
	StepAverageTimes map[string]time.Duration

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64

	// Sandbox metrics
	SandboxRuns     int64
	SandboxFailures int64
	SandboxTimeouts int64
}

// CostTracker tracks completion costs per model and operation
type CostTracker struct {
	mu sync.RWMutex

	OperationCosts map[string]float64 // operation (intent, plan, extract...) -> cost
	ModelCosts     map[string]float64 // model -> cost

	TotalCost   float64
	TotalTokens int64
}

// RequestEvent represents a single chat request
type RequestEvent struct {
	ID             string
	Message        string
	StartTime      time.Time
	EndTime        time.Time
	ProcessingTime time.Duration
	Success        bool
	Error          string
	Cost           float64
	TokensUsed     int64
	StepsPlanned   int
	StepsCompleted int
	ModelsUsed     []string
}

// StepEvent represents one plan step execution
type StepEvent struct {
	ID       string
	StepType string // function or endpoint
	Name     string
	Duration time.Duration
	Success  bool
	Fallback bool
	Error    string
}

// SandboxEvent represents one sandboxed code execution
type SandboxEvent struct {
	ID       string
	Duration time.Duration
	Success  bool
	TimedOut bool
	Error    string
}

// LLMEvent represents one completion call
type LLMEvent struct {
	Operation    string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Duration     time.Duration
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(config config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: config,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			StepExecutions:   make(map[string]int64),
			StepSuccessRates: make(map[string]float64),
			StepAverageTimes: make(map[string]time.Duration),
			LLMRequests:      make(map[string]int64),
			LLMTokensUsed:    make(map[string]int64),
		},
		costTracker: &CostTracker{
			OperationCosts: make(map[string]float64),
			ModelCosts:     make(map[string]float64),
		},
	}
}

// RecordRequestEvent records a complete chat request
func (t *Telemetry) RecordRequestEvent(ctx context.Context, event RequestEvent) {
	if !t.config.Enabled {
		return
	}
	promRequests.WithLabelValues(outcomeLabel(event.Success)).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRequests++
	if event.Success {
		t.metrics.SuccessfulRequests++
	} else {
		t.metrics.FailedRequests++
	}

	if t.metrics.TotalRequests == 1 {
		t.metrics.AverageProcessingTime = event.ProcessingTime
	} else {
		total := t.metrics.AverageProcessingTime * time.Duration(t.metrics.TotalRequests-1)
		t.metrics.AverageProcessingTime = (total + event.ProcessingTime) / time.Duration(t.metrics.TotalRequests)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Request Event: ID=%s, Success=%t, Duration=%v, Steps=%d/%d, Cost=$%.4f",
		event.ID, event.Success, event.ProcessingTime, event.StepsCompleted, event.StepsPlanned, event.Cost)
}

// RecordStepEvent records a plan step execution
func (t *Telemetry) RecordStepEvent(ctx context.Context, event StepEvent) {
	if !t.config.Enabled {
		return
	}
	promSteps.WithLabelValues(event.StepType, outcomeLabel(event.Success)).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.StepExecutions[event.StepType]++

	currentSuccess := t.metrics.StepSuccessRates[event.StepType]
	currentExecutions := t.metrics.StepExecutions[event.StepType]
	if event.Success {
		currentSuccess += 1.0
	}
	t.metrics.StepSuccessRates[event.StepType] = currentSuccess / float64(currentExecutions)

	currentAvg := t.metrics.StepAverageTimes[event.StepType]
	if currentExecutions == 1 {
		t.metrics.StepAverageTimes[event.StepType] = event.Duration
	} else {
		total := currentAvg * time.Duration(currentExecutions-1)
		t.metrics.StepAverageTimes[event.StepType] = (total + event.Duration) / time.Duration(currentExecutions)
	}

	t.logger.Printf("Step Event: Type=%s, Name=%s, Success=%t, Fallback=%t, Duration=%v",
		event.StepType, event.Name, event.Success, event.Fallback, event.Duration)
}

// RecordSandboxEvent records a sandboxed execution
func (t *Telemetry) RecordSandboxEvent(ctx context.Context, event SandboxEvent) {
	if !t.config.Enabled {
		return
	}
	promSandboxRuns.WithLabelValues(outcomeLabel(event.Success)).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.SandboxRuns++
	if !event.Success {
		t.metrics.SandboxFailures++
	}
	if event.TimedOut {
		t.metrics.SandboxTimeouts++
	}

	t.logger.Printf("Sandbox Event: Success=%t, TimedOut=%t, Duration=%v",
		event.Success, event.TimedOut, event.Duration)
}

// RecordLLMEvent records a completion call with its cost
func (t *Telemetry) RecordLLMEvent(ctx context.Context, event LLMEvent) {
	if !t.config.Enabled {
		return
	}
	promLLMTokens.WithLabelValues(event.Model).Add(float64(event.InputTokens + event.OutputTokens))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.LLMRequests[event.Model]++
	t.metrics.LLMTokensUsed[event.Model] += event.InputTokens + event.OutputTokens

	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.InputTokens + event.OutputTokens
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.costTracker.OperationCosts[event.Operation] += event.Cost
	}
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := Metrics{
		TotalRequests:         t.metrics.TotalRequests,
		SuccessfulRequests:    t.metrics.SuccessfulRequests,
		FailedRequests:        t.metrics.FailedRequests,
		AverageProcessingTime: t.metrics.AverageProcessingTime,
		SandboxRuns:           t.metrics.SandboxRuns,
		SandboxFailures:       t.metrics.SandboxFailures,
		SandboxTimeouts:       t.metrics.SandboxTimeouts,
		StepExecutions:        make(map[string]int64),
		StepSuccessRates:      make(map[string]float64),
		StepAverageTimes:      make(map[string]time.Duration),
		LLMRequests:           make(map[string]int64),
		LLMTokensUsed:         make(map[string]int64),
	}

	for k, v := range t.metrics.StepExecutions {
		metrics.StepExecutions[k] = v
	}
	for k, v := range t.metrics.StepSuccessRates {
		metrics.StepSuccessRates[k] = v
	}
	for k, v := range t.metrics.StepAverageTimes {
		metrics.StepAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}

	return metrics
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost      float64
	TotalTokens    int64
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:      t.costTracker.TotalCost,
		TotalTokens:    t.costTracker.TotalTokens,
		ModelCosts:     make(map[string]float64),
		OperationCosts: make(map[string]float64),
	}

	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.OperationCosts {
		summary.OperationCosts[k] = v
	}

	return summary
}

// CalculateCost calculates the cost for a given number of tokens and model
func (t *Telemetry) CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * costPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * costPer1KOutput
	return inputCost + outputCost
}

// Shutdown logs a final report
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Requests: %d", metrics.TotalRequests)
	if metrics.TotalRequests > 0 {
		t.logger.Printf("  Success Rate: %.2f%%", float64(metrics.SuccessfulRequests)/float64(metrics.TotalRequests)*100)
	}
	t.logger.Printf("  Average Processing Time: %v", metrics.AverageProcessingTime)
	t.logger.Printf("  Sandbox Runs: %d (%d failures, %d timeouts)", metrics.SandboxRuns, metrics.SandboxFailures, metrics.SandboxTimeouts)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Requests: %d
  Successful: %d
  Failed: %d
  Average Processing Time: %v
  Total Cost: $%.4f
  Total Tokens: %d

Step Performance:
`, metrics.TotalRequests, metrics.SuccessfulRequests, metrics.FailedRequests,
		metrics.AverageProcessingTime, costs.TotalCost, costs.TotalTokens)

	for stepType, executions := range metrics.StepExecutions {
		successRate := metrics.StepSuccessRates[stepType]
		avgTime := metrics.StepAverageTimes[stepType]
		report += fmt.Sprintf("  %s: %d executions, %.2f%% success, %v avg time\n",
			stepType, executions, successRate*100, avgTime)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, tokens, cost)
	}

	return report
}
