// Package sandbox executes generated python code in an isolated subprocess.
// Every execution gets its own temp directory and a hard timeout; the runner
// never returns a Go error for execution failures, it reports them inside
// the structured Result instead.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/telemetry"
)

// Result is the structured outcome of one sandboxed execution.
type Result struct {
	Status string   `json:"status"` // "success" or "error"
	Logs   []string `json:"logs"`
	Error  string   `json:"error"`
	Output string   `json:"output"`
}

// Success reports whether the execution completed without error.
func (r Result) Success() bool { return r.Status == "success" }

// Runner executes python snippets in a subprocess under the loaded policy.
type Runner struct {
	cfg       config.SandboxConfig
	enforcer  *Enforcer
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewRunner creates a sandbox runner. The policy file referenced by the
// config is loaded once here.
func NewRunner(cfg config.SandboxConfig, tel *telemetry.Telemetry) (*Runner, error) {
	policy, err := LoadPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading sandbox policy: %w", err)
	}
	return &Runner{
		cfg:       cfg,
		enforcer:  NewEnforcer(policy),
		telemetry: tel,
		logger:    log.New(log.Writer(), "[SANDBOX] ", log.LstdFlags),
	}, nil
}

// wrapperTemplate hosts the user code inside a try block that captures
// stdout. The last printed line becomes the output; everything before it
// becomes logs. The wrapper itself always prints exactly one JSON document.
const wrapperTemplate = `
import sys
import io
import json

captured_output = io.StringIO()
sys.stdout = captured_output

try:
%s

    sys.stdout = sys.__stdout__
    logs = captured_output.getvalue().strip().split('\n')

    result = logs[-1] if logs else None
    logs = logs[:-1] if logs else []

    print(json.dumps({
        "status": "success",
        "logs": logs,
        "error": "",
        "output": result
    }))

except Exception as e:
    sys.stdout = sys.__stdout__
    logs = captured_output.getvalue().strip().split('\n')

    print(json.dumps({
        "status": "error",
        "logs": logs,
        "error": str(e),
        "output": ""
    }))
`

// Run executes the given python code. The returned Result always describes
// the outcome; a Go error is only possible for policy violations.
func (r *Runner) Run(ctx context.Context, code string) Result {
	timeout := r.cfg.DefaultTimeout
	req := Request{Timeout: timeout, NetworkEnabled: true}
	if err := r.enforcer.Validate(ctx, &req); err != nil {
		return Result{Status: "error", Logs: []string{}, Error: fmt.Sprintf("sandbox policy: %v", err)}
	}
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	start := time.Now()
	res, timedOut := r.execute(ctx, code, timeout)

	if r.telemetry != nil {
		r.telemetry.RecordSandboxEvent(ctx, telemetry.SandboxEvent{
			Duration: time.Since(start),
			Success:  res.Success(),
			TimedOut: timedOut,
			Error:    res.Error,
		})
	}
	return res
}

func (r *Runner) execute(ctx context.Context, code string, timeout time.Duration) (Result, bool) {
	tempDir, err := os.MkdirTemp("", "dugout-sandbox-*")
	if err != nil {
		return Result{Status: "error", Logs: []string{}, Error: fmt.Sprintf("creating temp dir: %v", err)}, false
	}
	defer os.RemoveAll(tempDir)

	codeFile := filepath.Join(tempDir, "analysis.py")
	wrapped := fmt.Sprintf(wrapperTemplate, indent(code, "    "))
	if err := os.WriteFile(codeFile, []byte(wrapped), 0o600); err != nil {
		return Result{Status: "error", Logs: []string{}, Error: fmt.Sprintf("writing code file: %v", err)}, false
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.cfg.PythonBinary, codeFile)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return Result{
			Status: "error",
			Logs:   []string{},
			Error:  fmt.Sprintf("Execution timed out after %d seconds", int(timeout.Seconds())),
		}, true
	}

	if runErr == nil {
		out := strings.TrimSpace(stdout.String())
		var res Result
		if err := json.Unmarshal([]byte(lastLine(out)), &res); err != nil {
			return Result{Status: "error", Logs: []string{}, Error: "Failed to parse execution result"}, false
		}
		if res.Logs == nil {
			res.Logs = []string{}
		}
		return res, false
	}

	// Non-zero exit: the wrapper itself failed (syntax error, missing
	// interpreter module). Surface the cleaned stderr.
	errorLines := strings.Split(stderr.String(), "\n")
	cleaned := make([]string, len(errorLines))
	for i, line := range errorLines {
		cleaned[i] = strings.ReplaceAll(line, codeFile, "<analysis>")
	}
	return Result{
		Status: "error",
		Logs:   []string{},
		Error:  strings.TrimSpace(strings.Join(cleaned, "\n")),
	}, false
}

// indent prefixes every line of code, keeping blank lines blank.
func indent(code, prefix string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func lastLine(s string) string {
	if idx := strings.LastIndex(s, "\n"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
