package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var stdoutLog struct {
	once sync.Once
	l    *log.Logger
}

// Logger returns the process-wide line logger on stdout. Request logging
// and audit events of the AInstein API both write through it so log
// shipping sees a single JSON stream.
func Logger() *log.Logger {
	stdoutLog.once.Do(func() {
		stdoutLog.l = log.New(os.Stdout, "", 0)
	})
	return stdoutLog.l
}

// LogRequest serializes one request's fields as a single JSON line. A
// marshal failure is reported in-band instead of silently dropping the
// entry.
func LogRequest(fields map[string]any) {
	line, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"request log entry not serializable"}`)
		return
	}
	Logger().Println(string(line))
}
