// Package logging turns hook invocations into structured log entries.
package logging

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	log "github.com/sirupsen/logrus"

	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/prefetch/dispatch"
	"github.com/sarchlab/prefetchsim/prefetch/history"
	"github.com/sarchlab/prefetchsim/prefetch/markov"
	"github.com/sarchlab/prefetchsim/prefetch/stride"
)

// DefaultLevels maps the hook positions of the prefetcher to log levels.
// Positions that are not listed are logged at debug level.
var DefaultLevels = map[*sim.HookPos]log.Level{
	dispatch.HookPosAccess:          log.TraceLevel,
	dispatch.HookPosComplete:        log.TraceLevel,
	dispatch.HookPosPrefetchIssued:  log.DebugLevel,
	dispatch.HookPosPrefetchDropped: log.DebugLevel,
	history.HookPosEntryEvicted:     log.DebugLevel,
	stride.HookPosPCEvicted:         log.DebugLevel,
	markov.HookPosNodeDestroyed:     log.DebugLevel,
}

// LogHook writes every hook context it receives as a log entry.
type LogHook struct {
	logger log.FieldLogger
	levels map[*sim.HookPos]log.Level
}

// NewLogHook creates a LogHook that writes to logger with the default
// levels.
func NewLogHook(logger log.FieldLogger) *LogHook {
	levels := make(map[*sim.HookPos]log.Level, len(DefaultLevels))
	for pos, level := range DefaultLevels {
		levels[pos] = level
	}

	return &LogHook{
		logger: logger,
		levels: levels,
	}
}

// SetLevel changes the level of one hook position.
func (h *LogHook) SetLevel(pos *sim.HookPos, level log.Level) {
	h.levels[pos] = level
}

// Level returns the level used for pos.
func (h *LogHook) Level(pos *sim.HookPos) log.Level {
	if level, ok := h.levels[pos]; ok {
		return level
	}
	return log.DebugLevel
}

// Func logs the hook context.
func (h *LogHook) Func(ctx sim.HookCtx) {
	name := "unknown"
	if ctx.Pos != nil {
		name = ctx.Pos.Name
	}

	fields := log.Fields{
		"pos":    name,
		"domain": fmt.Sprintf("%T", ctx.Domain),
	}
	for k, v := range itemFields(ctx.Item) {
		fields[k] = v
	}
	if ctx.Detail != nil {
		fields["detail"] = ctx.Detail
	}

	h.logger.WithFields(fields).Log(h.Level(ctx.Pos), name)
}

func itemFields(item interface{}) log.Fields {
	switch v := item.(type) {
	case nil:
		return nil
	case uint64:
		return log.Fields{"item": hex(v)}
	case prefetch.AccessEvent:
		return log.Fields{
			"pc":   hex(v.PC),
			"addr": hex(v.Address),
			"time": v.Time,
			"miss": v.Miss,
		}
	case stride.Entry:
		return log.Fields{
			"pc":     hex(v.PC),
			"state":  v.State.String(),
			"stride": v.Stride,
		}
	case history.Entry[int64]:
		return EntryFields(v)
	default:
		return log.Fields{"item": fmt.Sprintf("%+v", v)}
	}
}

// EntryFields describes a history interval as log fields.
func EntryFields[T any](e history.Entry[T]) log.Fields {
	return log.Fields{
		"start":   hex(e.Start),
		"end":     hex(e.End),
		"last":    e.LastAccess,
		"payload": e.Payload,
	}
}

// DumpHistory logs every interval of the store, in address order, at debug
// level.
func DumpHistory[T any](logger log.FieldLogger, store *history.Store[T]) {
	for i, e := range store.Entries() {
		logger.WithFields(EntryFields(e)).
			WithField("index", i).
			Debug("history entry")
	}
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
