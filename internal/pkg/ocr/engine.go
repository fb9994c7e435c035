package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrSpawn is returned when the engine process could not be started.
var ErrSpawn = errors.New("ocr: engine could not be started")

// ExitStatus is the engine's exit code interpreted as a status.
type ExitStatus int

const (
	StatusNoError ExitStatus = iota
	StatusInitFailed
	StatusReadFailed
	StatusUnsupportedFormat
	StatusRecognitionFailed
	StatusEmptyImage
	statusMax

	// StatusUnknown covers exit codes outside the engine's range.
	StatusUnknown ExitStatus = -1
)

var statusMessages = [...]string{
	StatusNoError:           "no error",
	StatusInitFailed:        "engine initialisation failed",
	StatusReadFailed:        "could not read image from stdin",
	StatusUnsupportedFormat: "unsupported image format",
	StatusRecognitionFailed: "text recognition failed",
	StatusEmptyImage:        "image is empty",
}

// StatusFromCode maps a process exit code to an ExitStatus.
func StatusFromCode(code int) ExitStatus {
	if code < int(StatusNoError) || code >= int(statusMax) {
		return StatusUnknown
	}
	return ExitStatus(code)
}

// Known reports whether the status came from the engine's documented range.
func (s ExitStatus) Known() bool {
	return s >= StatusNoError && s < statusMax
}

func (s ExitStatus) String() string {
	if !s.Known() {
		return "unknown"
	}
	return statusMessages[s]
}

// Final reports whether rerunning the engine on the same bytes would give
// the same answer. Other statuses point at the engine rather than the image.
func (s ExitStatus) Final() bool {
	switch s {
	case StatusNoError, StatusUnsupportedFormat, StatusEmptyImage:
		return true
	}
	return false
}

// Result is the outcome of a single extraction.
type Result struct {
	Text     string
	Status   ExitStatus
	ExitCode int
	Lines    int
	Duration time.Duration
}

// Config describes how to launch the engine.
type Config struct {
	Command string
	Args    []string
	// Timeout kills the engine when positive. Zero means no limit.
	Timeout time.Duration
	// WaitDelay bounds how long output is collected after the engine exits
	// or is killed, in case a child of the engine still holds its stdout.
	WaitDelay time.Duration
}

// DefaultConfig returns the engine binary expected next to the service.
func DefaultConfig() Config {
	return Config{Command: "./tessd", WaitDelay: time.Second}
}

// Engine runs one short-lived OCR process per call.
type Engine struct {
	config Config
	log    *log.Helper
}

// NewEngine creates a new Engine.
func NewEngine(config Config, logger log.Logger) *Engine {
	def := DefaultConfig()
	if config.Command == "" {
		config.Command = def.Command
	}
	if config.WaitDelay <= 0 {
		config.WaitDelay = def.WaitDelay
	}
	return &Engine{config: config, log: log.NewHelper(logger)}
}

// Extract writes data to a fresh engine process and collects the text lines
// it prints. The process is reaped on every return path.
func (e *Engine) Extract(ctx context.Context, data []byte) (*Result, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.config.Command, e.config.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.config.WaitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	err := cmd.Wait()

	lines := splitLines(stdout.Bytes())
	result := &Result{
		Text:     strings.Join(lines, "\n"),
		Lines:    len(lines),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case ctx.Err() != nil:
		return result, fmt.Errorf("ocr: engine stopped: %w", ctx.Err())
	case errors.Is(err, exec.ErrWaitDelay):
		return result, fmt.Errorf("ocr: engine output still open after exit: %w", err)
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, fmt.Errorf("ocr: wait for engine: %w", err)
	}
	result.Status = StatusFromCode(result.ExitCode)
	if result.ExitCode != 0 && stderr.Len() > 0 {
		e.log.Warnf("ocr engine exited %d: %s", result.ExitCode, strings.TrimSpace(stderr.String()))
	}
	e.log.Debugf("ocr engine read %d lines in %s", result.Lines, result.Duration)
	return result, nil
}

func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), len(out)+1)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
