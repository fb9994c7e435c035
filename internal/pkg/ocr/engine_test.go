package ocr

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellEngine(script string) *Engine {
	return NewEngine(Config{Command: "/bin/sh", Args: []string{"-c", script}}, log.DefaultLogger)
}

func TestEngine_Extract_EchoesInput(t *testing.T) {
	engine := NewEngine(Config{Command: "/bin/cat"}, log.DefaultLogger)

	result, err := engine.Extract(context.Background(), []byte("WARNING nsfw content\nsecond line\n"))
	require.NoError(t, err)
	assert.Equal(t, "WARNING nsfw content\nsecond line", result.Text)
	assert.Equal(t, 2, result.Lines)
	assert.Equal(t, StatusNoError, result.Status)
}

func TestEngine_Extract_LargeInput(t *testing.T) {
	engine := shellEngine("wc -c")
	data := make([]byte, 1<<20)

	result, err := engine.Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "1048576")
}

func TestEngine_Extract_ExitStatus(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   ExitStatus
		code   int
	}{
		{"no error", "cat >/dev/null; echo ok", StatusNoError, 0},
		{"read failed", "cat >/dev/null; exit 2", StatusReadFailed, 2},
		{"empty image", "cat >/dev/null; exit 5", StatusEmptyImage, 5},
		{"unknown", "cat >/dev/null; exit 42", StatusUnknown, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := shellEngine(tt.script).Extract(context.Background(), []byte("img"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, tt.code, result.ExitCode)
		})
	}
}

func TestEngine_Extract_EngineIgnoresInput(t *testing.T) {
	result, err := shellEngine("echo hello").Extract(context.Background(), make([]byte, 256*1024))
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
}

func TestEngine_Extract_SpawnFailure(t *testing.T) {
	engine := NewEngine(Config{Command: "/nonexistent/ocr-engine"}, log.DefaultLogger)

	result, err := engine.Extract(context.Background(), []byte("img"))
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrSpawn))
}

func TestEngine_Extract_Timeout(t *testing.T) {
	engine := NewEngine(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 100 * time.Millisecond,
	}, log.DefaultLogger)

	start := time.Now()
	_, err := engine.Extract(context.Background(), nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestEngine_Extract_TimeoutWithChildHoldingOutput(t *testing.T) {
	engine := NewEngine(Config{
		Command:   "/bin/sh",
		Args:      []string{"-c", "sleep 10 & exec sleep 10"},
		Timeout:   100 * time.Millisecond,
		WaitDelay: 200 * time.Millisecond,
	}, log.DefaultLogger)

	start := time.Now()
	_, err := engine.Extract(context.Background(), nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestEngine_Extract_ExitedWithChildHoldingOutput(t *testing.T) {
	engine := NewEngine(Config{
		Command:   "/bin/sh",
		Args:      []string{"-c", "sleep 10 & echo partial"},
		WaitDelay: 200 * time.Millisecond,
	}, log.DefaultLogger)

	start := time.Now()
	_, err := engine.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, exec.ErrWaitDelay)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestStatusFromCode(t *testing.T) {
	assert.Equal(t, StatusNoError, StatusFromCode(0))
	assert.Equal(t, StatusUnsupportedFormat, StatusFromCode(3))
	assert.Equal(t, StatusUnknown, StatusFromCode(-1))
	assert.Equal(t, StatusUnknown, StatusFromCode(6))
	assert.False(t, StatusUnknown.Known())
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "text recognition failed", StatusRecognitionFailed.String())
}

func TestExitStatus_Final(t *testing.T) {
	assert.True(t, StatusNoError.Final())
	assert.True(t, StatusEmptyImage.Final())
	assert.True(t, StatusUnsupportedFormat.Final())
	assert.False(t, StatusInitFailed.Final())
	assert.False(t, StatusReadFailed.Final())
	assert.False(t, StatusUnknown.Final())
}
