package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type formatter interface {
	format(level Level, ts time.Time, msg string, fields Fields) string
}

type consoleFormatter struct {
	timeFormat string
}

func (f *consoleFormatter) format(level Level, ts time.Time, msg string, fields Fields) string {
	var b strings.Builder
	b.WriteString(ts.Format(f.timeFormat))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	return b.String()
}

type jsonFormatter struct {
	timeFormat string
}

func (f *jsonFormatter) format(level Level, ts time.Time, msg string, fields Fields) string {
	payload := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		payload[k] = v
	}
	payload["time"] = ts.Format(f.timeFormat)
	payload["level"] = level.String()
	payload["message"] = msg

	out, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"level":"%s","message":%q}`, level.String(), msg)
	}
	return string(out)
}
