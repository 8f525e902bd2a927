package sim

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Level is the severity of a diagnostic event.
type Level int

// Diagnostic levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Event is a diagnostic produced by the engine.
// Fields holds alternating keys and values.
type Event struct {
	Level   Level
	Message string
	Fields  []any
}

// Sink receives diagnostics. The host decides where they are surfaced.
// Report is called synchronously from the frame loop and must not call back
// into the Simulation.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Report calls f(e).
func (f SinkFunc) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// LoggerSink forwards events to a charmbracelet logger at the matching level.
// A nil logger falls back to log.Default().
func LoggerSink(l *log.Logger) Sink {
	if l == nil {
		l = log.Default()
	}
	return SinkFunc(func(e Event) {
		switch e.Level {
		case LevelDebug:
			l.Debug(e.Message, e.Fields...)
		case LevelInfo:
			l.Info(e.Message, e.Fields...)
		case LevelWarn:
			l.Warn(e.Message, e.Fields...)
		default:
			l.Error(e.Message, e.Fields...)
		}
	})
}

func (s *Simulation) report(level Level, msg string, keyvals ...any) {
	s.sink.Report(Event{Level: level, Message: msg, Fields: keyvals})
}
