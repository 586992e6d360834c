package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	colorReset = "\033[0m"
	colorGray  = "\033[90m"
	colorCyan  = "\033[36m"
	colorRed   = "\033[31m"
)

var levelColors = map[Level]string{
	LevelDebug: "\033[1;36m",
	LevelInfo:  "\033[1;32m",
	LevelWarn:  "\033[1;33m",
	LevelError: "\033[1;31m",
	LevelFatal: "\033[1;31m",
}

func paint(b *strings.Builder, colors bool, color, s string) {
	if colors {
		b.WriteString(color)
		b.WriteString(s)
		b.WriteString(colorReset)
		return
	}
	b.WriteString(s)
}

// formatConsole renders `time [LEVEL] msg k=v ...` with keys sorted, and the
// error on its own indented line.
func formatConsole(rec line, colors bool) []byte {
	var b strings.Builder

	paint(&b, colors, colorGray, rec.time.Format(time.RFC3339))
	b.WriteByte(' ')
	paint(&b, colors, levelColors[rec.level], fmt.Sprintf("[%s]", rec.level))
	b.WriteByte(' ')
	if rec.caller != "" {
		paint(&b, colors, colorGray, "["+rec.caller+"] ")
	}
	b.WriteString(rec.msg)

	if len(rec.fields) > 0 {
		keys := make([]string, 0, len(rec.fields))
		for k := range rec.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, rec.fields[k]))
		}
		b.WriteByte(' ')
		paint(&b, colors, colorCyan, strings.Join(pairs, " "))
	}

	if rec.err != nil {
		b.WriteString("\n  ")
		paint(&b, colors, colorRed, "╰─→ error: "+rec.err.Error())
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// formatJSON renders one object per line. Reserved keys win over fields of
// the same name.
func formatJSON(rec line) []byte {
	obj := make(map[string]interface{}, len(rec.fields)+5)
	for k, v := range rec.fields {
		if e, ok := v.(error); ok {
			v = e.Error()
		}
		obj[k] = v
	}
	obj["timestamp"] = rec.time.Format(time.RFC3339Nano)
	obj["level"] = rec.level.String()
	obj["message"] = rec.msg
	if rec.service != "" {
		obj["service"] = rec.service
	}
	if rec.caller != "" {
		obj["caller"] = rec.caller
	}
	if rec.err != nil {
		obj["error"] = rec.err.Error()
	}

	out, err := json.Marshal(obj)
	if err != nil {
		out, _ = json.Marshal(map[string]string{
			"level":   rec.level.String(),
			"message": rec.msg,
			"error":   "logx: unencodable fields: " + err.Error(),
		})
	}
	return append(out, '\n')
}
