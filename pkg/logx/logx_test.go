package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelOff, ParseLevel("off"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = LevelWarn
	cfg.Output = &buf
	l := NewLogger(cfg)

	l.WithField("k", "v").Info("hidden")
	assert.Empty(t, buf.String())

	l.WithField("k", "v").Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSONFormatter_IncludesFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Output = &buf
	l := NewLogger(cfg)

	l.WithFields(Fields{"job_id": "j1"}).WithError(errors.New("boom")).Error("job failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "job failed", line["message"])
	assert.Equal(t, "j1", line["job_id"])
	assert.Equal(t, "boom", line["error"])
}

func TestConsoleFormatter_NoColors(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.EnableColors = false
	cfg.Output = &buf
	l := NewLogger(cfg)

	l.WithFields(Fields{"b": 2, "a": 1}).Info("hello")

	out := buf.String()
	assert.Contains(t, out, "INFO  hello a=1 b=2")
	assert.NotContains(t, out, "\033[")
}

// previousLine returns the line just above its call site.
func previousLine() int {
	_, _, line, _ := runtime.Caller(1)
	return line - 1
}

func TestCaller_PointsAtLoggingSite(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.EnableCaller = true
	cfg.Output = &buf
	l := NewLogger(cfg)

	prev := defaultLogger
	SetDefaultLogger(l)
	defer SetDefaultLogger(prev)

	emit := []func() int{
		func() int {
			l.WithField("k", 1).Info("plain")
			return previousLine()
		},
		func() int {
			l.WithField("k", 1).Infof("formatted %d", 1)
			return previousLine()
		},
		func() int {
			l.WithError(errors.New("x")).Errorf("formatted %s", "err")
			return previousLine()
		},
		func() int {
			Warnf("package %s", "level")
			return previousLine()
		},
		func() int {
			Info("package plain")
			return previousLine()
		},
	}
	for i, fn := range emit {
		buf.Reset()
		line := fn()

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), i)
		assert.Equal(t, fmt.Sprintf("logx_test.go:%d", line), rec["caller"], "entry %d", i)
	}
}
