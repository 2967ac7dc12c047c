package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	debugMu sync.RWMutex
	debug   bool
)

// Logger returns the shared line logger used across the service. Output is
// one JSON object per line.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetDebug toggles emission of debug-level diagnostics (credential check
// timing and outcomes). Plaintexts and digests are never logged regardless.
func SetDebug(enabled bool) {
	debugMu.Lock()
	debug = enabled
	debugMu.Unlock()
}

// DebugEnabled reports whether debug diagnostics are on.
func DebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debug
}

// Log emits a structured JSON log line with a timestamp and level.
func Log(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Debug emits a debug line when debug diagnostics are enabled.
func Debug(msg string, fields map[string]any) {
	if !DebugEnabled() {
		return
	}
	Log("debug", msg, fields)
}

// Info emits an info line.
func Info(msg string, fields map[string]any) {
	Log("info", msg, fields)
}

// Error emits an error line.
func Error(msg string, fields map[string]any) {
	Log("error", msg, fields)
}
