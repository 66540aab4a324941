package sandbox

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	"github.com/dugoutai/dugout/config"
)

// Policy represents runtime sandbox settings for generated code execution.
type Policy struct {
	Provider string  `yaml:"provider"`
	CPU      float64 `yaml:"cpu"`
	Memory   string  `yaml:"memory"`
	Timeout  string  `yaml:"timeout"`
	Network  struct {
		Enabled   bool     `yaml:"enabled"`
		Allowlist []string `yaml:"allowlist"`
	} `yaml:"network"`
	EnvAllowlist []string `yaml:"env_allowlist"`
}

// LoadPolicy reads policy from cfg.PolicyFile. A missing policy file is not
// an error; the config defaults apply.
func LoadPolicy(cfg config.SandboxConfig) (*Policy, error) {
	policyPath := cfg.PolicyFile
	if policyPath == "" {
		return defaultPolicy(cfg), nil
	}
	data, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var policy struct {
		Sandbox Policy `yaml:"sandbox"`
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if policy.Sandbox.Provider == "" {
		policy.Sandbox.Provider = cfg.Provider
	}
	if policy.Sandbox.Timeout == "" {
		policy.Sandbox.Timeout = cfg.DefaultTimeout.String()
	}
	if policy.Sandbox.CPU == 0 {
		policy.Sandbox.CPU = cfg.DefaultCPU
	}
	if policy.Sandbox.Memory == "" {
		policy.Sandbox.Memory = cfg.DefaultMemory
	}
	return &policy.Sandbox, nil
}

func defaultPolicy(cfg config.SandboxConfig) *Policy {
	p := &Policy{
		Provider: cfg.Provider,
		CPU:      cfg.DefaultCPU,
		Memory:   cfg.DefaultMemory,
		Timeout:  cfg.DefaultTimeout.String(),
	}
	// Generated retrieval code calls the statistics API over the network.
	p.Network.Enabled = true
	return p
}

// Enforcer performs policy validation prior to execution.
type Enforcer struct {
	policy *Policy
}

var (
	sandboxMetricsOnce      sync.Once
	sandboxRequests         otelmetric.Int64Counter
	sandboxTimeoutHistogram otelmetric.Float64Histogram
	sandboxMemoryHistogram  otelmetric.Float64Histogram
)

func initSandboxMetrics() {
	meter := otel.Meter("dugout/sandbox")
	var err error
	sandboxRequests, err = meter.Int64Counter(
		"sandbox_requests_total",
		otelmetric.WithDescription("Number of sandbox validations performed"),
	)
	if err != nil {
		log.Printf("sandbox metrics init: requests counter: %v", err)
	}
	sandboxTimeoutHistogram, err = meter.Float64Histogram(
		"sandbox_request_timeout_seconds",
		otelmetric.WithDescription("Requested timeout for sandboxed execution"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("sandbox metrics init: timeout histogram: %v", err)
	}
	sandboxMemoryHistogram, err = meter.Float64Histogram(
		"sandbox_request_memory_bytes",
		otelmetric.WithDescription("Requested memory limit for sandboxed execution"),
		otelmetric.WithUnit("By"),
	)
	if err != nil {
		log.Printf("sandbox metrics init: memory histogram: %v", err)
	}
}

// NewEnforcer wraps a loaded policy.
func NewEnforcer(policy *Policy) *Enforcer {
	return &Enforcer{policy: policy}
}

// Request describes an execution request for validation.
type Request struct {
	Provider       string
	Timeout        time.Duration
	NetworkEnabled bool
}

// Validate ensures settings meet policy requirements and applies default
// values from the loaded policy. The request is mutated in place so callers
// can rely on the returned values for downstream execution.
func (e *Enforcer) Validate(ctx context.Context, req *Request) error {
	if e == nil || e.policy == nil {
		return nil
	}
	if req == nil {
		return fmt.Errorf("sandbox request is nil")
	}
	if req.Provider == "" {
		req.Provider = e.policy.Provider
	} else if req.Provider != e.policy.Provider {
		return fmt.Errorf("provider %s not allowed (configured %s)", req.Provider, e.policy.Provider)
	}
	if req.Timeout <= 0 {
		if d, err := time.ParseDuration(e.policy.Timeout); err == nil {
			req.Timeout = d
		}
	}
	if req.Timeout > 0 {
		if d, err := time.ParseDuration(e.policy.Timeout); err == nil && req.Timeout > d {
			return fmt.Errorf("timeout %s exceeds policy %s", req.Timeout, d)
		}
	}
	if !e.policy.Network.Enabled && req.NetworkEnabled {
		return fmt.Errorf("network access disabled by policy")
	}
	recordSandboxMetrics(ctx, e.policy, *req)
	return nil
}

// Policy returns the underlying policy, useful for diagnostics and logging.
func (e *Enforcer) Policy() *Policy {
	if e == nil {
		return nil
	}
	return e.policy
}

func recordSandboxMetrics(ctx context.Context, policy *Policy, normalized Request) {
	if ctx == nil {
		ctx = context.Background()
	}
	sandboxMetricsOnce.Do(initSandboxMetrics)
	attrs := []attribute.KeyValue{
		attribute.String("provider", strings.TrimSpace(policy.Provider)),
	}
	if sandboxRequests != nil {
		sandboxRequests.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
	}
	if sandboxTimeoutHistogram != nil && normalized.Timeout > 0 {
		sandboxTimeoutHistogram.Record(ctx, normalized.Timeout.Seconds(), otelmetric.WithAttributes(attrs...))
	}
	if sandboxMemoryHistogram != nil {
		if memBytes := parseMemoryBytes(policy.Memory); memBytes > 0 {
			sandboxMemoryHistogram.Record(ctx, memBytes, otelmetric.WithAttributes(attrs...))
		}
	}
}

func parseMemoryBytes(value string) float64 {
	val := strings.TrimSpace(strings.ToLower(value))
	if val == "" {
		return 0
	}
	// Longest suffixes first so "mb" is not mistaken for "b".
	unitMultipliers := []struct {
		unit       string
		multiplier float64
	}{
		{"kib", 1024}, {"mib", 1024 * 1024}, {"gib", 1024 * 1024 * 1024},
		{"tib", 1024 * 1024 * 1024 * 1024}, {"pib", math.Pow(1024, 5)},
		{"kb", 1024}, {"mb", 1024 * 1024}, {"gb", 1024 * 1024 * 1024},
		{"tb", 1024 * 1024 * 1024 * 1024}, {"pb", math.Pow(1024, 5)},
		{"k", 1024}, {"m", 1024 * 1024}, {"g", 1024 * 1024 * 1024},
		{"t", 1024 * 1024 * 1024 * 1024}, {"p", math.Pow(1024, 5)},
		{"b", 1},
	}

	for _, um := range unitMultipliers {
		if strings.HasSuffix(val, um.unit) {
			number := strings.TrimSpace(strings.TrimSuffix(val, um.unit))
			f, err := strconv.ParseFloat(number, 64)
			if err != nil {
				return 0
			}
			return f * um.multiplier
		}
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	return 0
}
