package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dugoutai/dugout/config"
)

func enabledTelemetry() *Telemetry {
	return NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})
}

func TestRecordRequestEvent(t *testing.T) {
	tel := enabledTelemetry()
	ctx := context.Background()

	tel.RecordRequestEvent(ctx, RequestEvent{ID: "1", Success: true, ProcessingTime: 100 * time.Millisecond})
	tel.RecordRequestEvent(ctx, RequestEvent{ID: "2", Success: false, ProcessingTime: 300 * time.Millisecond})

	m := tel.GetMetrics()
	if m.TotalRequests != 2 || m.SuccessfulRequests != 1 || m.FailedRequests != 1 {
		t.Fatalf("unexpected request counts: %+v", m)
	}
	if m.AverageProcessingTime != 200*time.Millisecond {
		t.Fatalf("average = %v", m.AverageProcessingTime)
	}
}

func TestRecordStepEvent(t *testing.T) {
	tel := enabledTelemetry()
	ctx := context.Background()

	tel.RecordStepEvent(ctx, StepEvent{StepType: "endpoint", Success: true, Duration: 10 * time.Millisecond})
	tel.RecordStepEvent(ctx, StepEvent{StepType: "endpoint", Success: false, Duration: 30 * time.Millisecond})

	m := tel.GetMetrics()
	if m.StepExecutions["endpoint"] != 2 {
		t.Fatalf("executions = %d", m.StepExecutions["endpoint"])
	}
	if rate := m.StepSuccessRates["endpoint"]; rate <= 0 || rate >= 1 {
		t.Fatalf("success rate = %f", rate)
	}
}

func TestRecordLLMEventTracksCost(t *testing.T) {
	tel := enabledTelemetry()
	ctx := context.Background()

	tel.RecordLLMEvent(ctx, LLMEvent{Operation: "intent", Model: "flash", InputTokens: 100, OutputTokens: 50, Cost: 0.002})
	tel.RecordLLMEvent(ctx, LLMEvent{Operation: "plan", Model: "pro", InputTokens: 200, OutputTokens: 100, Cost: 0.01})

	costs := tel.GetCostSummary()
	if costs.TotalTokens != 450 {
		t.Fatalf("total tokens = %d", costs.TotalTokens)
	}
	if costs.ModelCosts["pro"] != 0.01 || costs.OperationCosts["intent"] != 0.002 {
		t.Fatalf("unexpected cost breakdown: %+v", costs)
	}
}

func TestDisabledTelemetryRecordsNothing(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{})
	ctx := context.Background()

	tel.RecordRequestEvent(ctx, RequestEvent{ID: "1", Success: true})
	tel.RecordSandboxEvent(ctx, SandboxEvent{Success: false})

	m := tel.GetMetrics()
	if m.TotalRequests != 0 || m.SandboxRuns != 0 {
		t.Fatalf("disabled telemetry must record nothing: %+v", m)
	}
}

func TestCalculateCost(t *testing.T) {
	tel := enabledTelemetry()
	got := tel.CalculateCost(1000, 2000, 0.1, 0.4)
	if got != 0.1+0.8 {
		t.Fatalf("cost = %f", got)
	}
}

func TestPerformanceReport(t *testing.T) {
	tel := enabledTelemetry()
	ctx := context.Background()
	tel.RecordStepEvent(ctx, StepEvent{StepType: "function", Success: true, Duration: time.Millisecond})
	tel.RecordLLMEvent(ctx, LLMEvent{Operation: "plan", Model: "flash", InputTokens: 10, OutputTokens: 10})

	report := tel.GetPerformanceReport()
	if !strings.Contains(report, "function") || !strings.Contains(report, "flash") {
		t.Fatalf("report incomplete: %s", report)
	}
}
