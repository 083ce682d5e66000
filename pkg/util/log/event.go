package log

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Event is a single log record delivered to a [Sink].
type Event struct {
	Time    time.Time
	Level   string
	Target  string
	Message string
	File    string
	Line    int

	// Fields holds the remaining key/value pairs in logging order.
	Fields []any
}

// Sink receives log events.
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a function to a [Sink].
type SinkFunc func(Event)

// Handle implements Sink.
func (f SinkFunc) Handle(e Event) { f(e) }

type eventLogger struct {
	sink Sink
}

// NewEventLogger returns a logger delivering every record to sink as an
// [Event]. The "level", "msg", "component", "caller" and "ts" keys fill the
// corresponding event fields; other pairs are kept in Event.Fields.
func NewEventLogger(sink Sink) log.Logger {
	return &eventLogger{sink: sink}
}

func (l *eventLogger) Log(keyvals ...any) error {
	ev := Event{Level: level.InfoValue().String()}

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var val any = log.ErrMissingValue
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}

		switch key {
		case "level":
			ev.Level = fmt.Sprint(val)
		case "msg":
			ev.Message = fmt.Sprint(val)
		case "component":
			ev.Target = fmt.Sprint(val)
		case "caller":
			ev.File, ev.Line = splitCaller(fmt.Sprint(val))
		case "ts":
			switch ts := val.(type) {
			case time.Time:
				ev.Time = ts
			case fmt.Stringer:
				ev.Time, _ = time.Parse(time.RFC3339Nano, ts.String())
			}
		default:
			ev.Fields = append(ev.Fields, key, val)
		}
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	l.sink.Handle(ev)
	return nil
}

func splitCaller(caller string) (string, int) {
	idx := strings.LastIndexByte(caller, ':')
	if idx < 0 {
		return caller, 0
	}
	line, err := strconv.Atoi(caller[idx+1:])
	if err != nil {
		return caller, 0
	}
	return caller[:idx], line
}

// FormatFields renders the extra fields of an event as logfmt-like pairs.
func (e Event) FormatFields() string {
	var sb strings.Builder
	for i := 0; i+1 < len(e.Fields); i += 2 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%v=%v", e.Fields[i], e.Fields[i+1])
	}
	return sb.String()
}
