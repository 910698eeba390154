package gridclient

import (
	"fmt"
	"io"
	"time"
)

// CallEvent records metadata about a single server round trip.
type CallEvent struct {
	Method    string
	Path      string
	Status    int
	LatencyMs int64
	Success   bool
	ErrorCode string
}

// Observer receives events about server calls for logging and metrics.
type Observer interface {
	OnCallComplete(event CallEvent)
}

// LogObserver writes call events to an io.Writer.
type LogObserver struct {
	w io.Writer
}

func NewLogObserver(w io.Writer) *LogObserver {
	return &LogObserver{w: w}
}

func (o *LogObserver) OnCallComplete(event CallEvent) {
	ts := time.Now().UTC().Format(time.RFC3339)
	status := "ok"
	if !event.Success {
		status = "err:" + event.ErrorCode
	}
	fmt.Fprintf(o.w, "[%s] grid_call method=%s path=%s http=%d latency_ms=%d status=%s\n",
		ts, event.Method, event.Path, event.Status, event.LatencyMs, status)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) OnCallComplete(CallEvent) {}
