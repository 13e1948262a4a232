// Package llm runs task prompts through an external LLM CLI. No API keys
// are handled here; the CLIs manage their own auth.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dotcommander/taskbrew/internal/models"
)

const disableExternalLLMEnv = "TASKBREW_DISABLE_EXTERNAL_LLM"

const claudeHooklessSettingsJSON = `{"hooks":{}}`

// maxPromptBytes bounds assembled prompt context.
const maxPromptBytes = 64000

// Result is one completed runner invocation.
type Result struct {
	Output string
	Usage  models.Usage
}

// Runner executes a prompt and returns the model's output plus usage.
// Implementations must honor ctx cancellation and deadlines.
type Runner interface {
	Run(ctx context.Context, prompt string) (*Result, error)
}

// DirRunner is implemented by runners that can execute inside a specific
// working directory, such as a per-task checkout.
type DirRunner interface {
	Runner
	RunIn(ctx context.Context, dir, prompt string) (*Result, error)
}

// validatePrompt checks for unsafe characters in prompts.
// While Go's exec avoids shell injection (no shell involved),
// external CLIs may be shell scripts.
func validatePrompt(s string) error {
	if len(s) == 0 {
		return errors.New("empty prompt")
	}
	if len(s) > maxPromptBytes {
		return fmt.Errorf("prompt exceeds %d byte limit (%d bytes)", maxPromptBytes, len(s))
	}
	if strings.ContainsRune(s, 0) {
		return errors.New("prompt contains null byte")
	}
	return nil
}

// CLIRunner dispatches prompts to an external CLI tool. "claude" uses
// `claude -p` with JSON output (which carries usage metrics); "opencode"
// uses `opencode run` with plain text.
type CLIRunner struct {
	command string
	model   string
	args    func(prompt string) []string
}

// NewCLIRunner returns a runner for the given command name ("claude",
// "opencode", or empty for the default). model is passed through when the
// CLI supports it.
func NewCLIRunner(command, model string) (*CLIRunner, error) {
	if strings.TrimSpace(os.Getenv(disableExternalLLMEnv)) != "" {
		return nil, fmt.Errorf("external LLM CLI execution disabled by %s", disableExternalLLMEnv)
	}
	r, err := resolveRunner(command, model)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(r.command); err != nil {
		return nil, fmt.Errorf("cli tool %q not found in PATH: %w", r.command, err)
	}
	return r, nil
}

func resolveRunner(command, model string) (*CLIRunner, error) {
	name := strings.ToLower(strings.TrimSpace(command))
	switch {
	case strings.HasPrefix(name, "opencode"):
		return &CLIRunner{
			command: "opencode",
			model:   model,
			args:    func(p string) []string { return []string{"run", p} },
		}, nil
	case strings.HasPrefix(name, "claude"), name == "":
		return &CLIRunner{
			command: "claude",
			model:   model,
			args: func(p string) []string {
				args := []string{"-p", p, "--output-format", "json", "--settings", claudeHooklessSettingsJSON}
				if model != "" {
					args = append(args, "--model", model)
				}
				return args
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown runner command %q (supported: claude, opencode)", command)
	}
}

// limitedWriter caps writes at maxBytes, silently discarding overflow, so a
// buggy CLI emitting unbounded stderr cannot exhaust memory.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil // report original len to avoid short write errors
}

// cliJSONResult is the JSON envelope claude prints with --output-format json.
type cliJSONResult struct {
	Result     string  `json:"result"`
	IsError    bool    `json:"is_error"`
	DurationMS float64 `json:"duration_ms"`
	NumTurns   int     `json:"num_turns"`
	TotalCost  float64 `json:"total_cost_usd"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Run executes the CLI and parses output plus usage metrics. CLIs that do
// not emit the JSON envelope fall back to plain text with empty usage.
func (r *CLIRunner) Run(ctx context.Context, prompt string) (*Result, error) {
	return r.RunIn(ctx, "", prompt)
}

// RunIn executes the CLI with dir as its working directory. Empty dir
// inherits the process working directory.
func (r *CLIRunner) RunIn(ctx context.Context, dir, prompt string) (*Result, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, fmt.Errorf("invalid prompt: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context expired before exec: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.command, r.args(prompt)...) //nolint:gosec // G204: command resolved from a fixed allowlist
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout bytes.Buffer
	stderrW := &limitedWriter{maxBytes: 4096}
	cmd.Stdout = &stdout
	cmd.Stderr = stderrW

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		stderrMsg := stderrW.buf.String()
		if stderrW.buf.Len() >= stderrW.maxBytes {
			stderrMsg += " (truncated)"
		}
		return nil, fmt.Errorf("cli %s failed: %w (stderr: %s)", r.command, err, stderrMsg)
	}

	return parseCLIOutput(stdout.String(), r.model), nil
}

func parseCLIOutput(raw, model string) *Result {
	trimmed := strings.TrimSpace(raw)

	var envelope cliJSONResult
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Result != "" {
		return &Result{
			Output: strings.TrimSpace(envelope.Result),
			Usage: models.Usage{
				InputTokens:  envelope.Usage.InputTokens,
				OutputTokens: envelope.Usage.OutputTokens,
				CostUSD:      envelope.TotalCost,
				DurationSec:  envelope.DurationMS / 1000,
				Turns:        envelope.NumTurns,
				Model:        model,
			},
		}
	}

	return &Result{Output: trimmed, Usage: models.Usage{Model: model}}
}

// Command returns the CLI command name for this runner.
func (r *CLIRunner) Command() string {
	return r.command
}
