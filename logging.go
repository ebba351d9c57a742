package dirty

import (
	"time"

	"github.com/rs/zerolog"
)

// TraceEvent captures one observable engine action: a lifecycle operation,
// an intercepted member, or a policy rule evaluation.
type TraceEvent struct {
	Op       string
	Type     string
	Property string
	Member   string
	Engine   string
	Rule     string
	Phase    string
	Duration time.Duration
	Err      error
}

// TraceLogger receives trace events from factories and rule policies.
type TraceLogger interface {
	Trace(event TraceEvent)
}

// TraceLoggerFunc adapts a function into a TraceLogger.
type TraceLoggerFunc func(event TraceEvent)

func (f TraceLoggerFunc) Trace(event TraceEvent) {
	if f != nil {
		f(event)
	}
}

type nopTraceLogger struct{}

func (nopTraceLogger) Trace(TraceEvent) {}

// ZerologTraceLogger forwards trace events to a zerolog logger. Events
// carrying an error log at warn level, the rest at debug.
type ZerologTraceLogger struct {
	logger zerolog.Logger
}

// NewZerologTraceLogger wraps the given logger.
func NewZerologTraceLogger(logger zerolog.Logger) *ZerologTraceLogger {
	return &ZerologTraceLogger{logger: logger}
}

func (z *ZerologTraceLogger) Trace(event TraceEvent) {
	if z == nil {
		return
	}
	entry := z.logger.Debug()
	if event.Err != nil {
		entry = z.logger.Warn().Err(event.Err)
	}
	if event.Op != "" {
		entry = entry.Str("op", event.Op)
	}
	if event.Type != "" {
		entry = entry.Str("type", event.Type)
	}
	if event.Property != "" {
		entry = entry.Str("property", event.Property)
	}
	if event.Member != "" {
		entry = entry.Str("member", event.Member)
	}
	if event.Engine != "" {
		entry = entry.Str("engine", event.Engine)
	}
	if event.Rule != "" {
		entry = entry.Str("rule", event.Rule)
	}
	if event.Phase != "" {
		entry = entry.Str("phase", event.Phase)
	}
	if event.Duration > 0 {
		entry = entry.Dur("duration", event.Duration)
	}
	entry.Msg("dirty trace")
}
