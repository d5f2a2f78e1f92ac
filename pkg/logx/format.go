package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type formatter interface {
	format(rec *record) ([]byte, error)
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1;31m"
)

type consoleFormatter struct {
	config *Config
}

func (f consoleFormatter) format(rec *record) ([]byte, error) {
	var b strings.Builder

	b.WriteString(f.paint(colorGray, rec.Timestamp.Format(f.config.TimeFormat)))
	b.WriteByte(' ')
	b.WriteString(f.paint(levelColor(rec.Level), fmt.Sprintf("%-5s", rec.Level)))
	b.WriteByte(' ')
	if rec.Caller != "" {
		b.WriteString(f.paint(colorGray, rec.Caller))
		b.WriteByte(' ')
	}
	b.WriteString(rec.Message)

	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", f.paint(colorCyan, k), rec.Fields[k])
	}
	if rec.Error != nil {
		fmt.Fprintf(&b, " %s=%q", f.paint(colorRed, "error"), rec.Error.Error())
	}
	b.WriteByte('\n')

	return []byte(b.String()), nil
}

func (f consoleFormatter) paint(color, s string) string {
	if !f.config.EnableColors {
		return s
	}
	return color + s + colorReset
}

func levelColor(l Level) string {
	switch l {
	case LevelTrace, LevelDebug:
		return colorGray
	case LevelInfo:
		return colorBlue
	case LevelWarn:
		return colorYellow
	case LevelError:
		return colorRed
	default:
		return colorBold
	}
}

type jsonFormatter struct {
	config *Config
}

func (f jsonFormatter) format(rec *record) ([]byte, error) {
	data := make(map[string]any, len(rec.Fields)+4)
	for k, v := range rec.Fields {
		data[k] = v
	}
	data["level"] = rec.Level.String()
	data["message"] = rec.Message
	data["timestamp"] = rec.Timestamp.Format(time.RFC3339Nano)
	if rec.Caller != "" {
		data["caller"] = rec.Caller
	}
	if rec.Error != nil {
		data["error"] = rec.Error.Error()
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
