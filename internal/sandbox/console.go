package sandbox

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// consoleSink receives the transferred arguments of one console.log call.
type consoleSink func(args []Value)

// newConsoleSink forwards console output to the engine logger and the
// per-call hook.
func newConsoleSink(logger *zap.Logger, backend Backend, onLog func(LogEntry)) consoleSink {
	return func(args []Value) {
		entry := LogEntry{
			Level:   "log",
			Message: formatConsoleArgs(args),
			Time:    time.Now(),
		}
		logger.Debug("sandbox console",
			zap.String("backend", string(backend)),
			zap.String("message", entry.Message))
		if onLog != nil {
			onLog(entry)
		}
	}
}

func formatConsoleArgs(args []Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatConsoleArg(arg))
	}
	return strings.Join(parts, " ")
}

func formatConsoleArg(arg Value) string {
	switch v := arg.(type) {
	case string:
		return v
	case undefined:
		return "undefined"
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s, err := sonic.MarshalString(arg)
	if err != nil {
		return "[unserializable]"
	}
	return s
}
