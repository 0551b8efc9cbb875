package priochan

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type used throughout this package. It is
// a type alias for the concrete logiface.Logger instantiated over stumpy's
// Event, following the stumpy.L.New idiom (see stumpy/example_test.go in
// the joeycumines/go-utilpkg tree this module was grown out of).
type Logger = logiface.Logger[*stumpy.Event]

// defaultLogger is used by channels and queues constructed without an
// explicit logger option (WithFixedChannelLogger, WithDynamicChannelLogger). It writes nothing by default (logiface.New
// with no writer option is a no-op logger), so production callers that want
// diagnostics must opt in explicitly.
var defaultLogger = stumpy.L.New()

// logSegmentGrowth, logSegmentRetire, and logRendezvousMiss are the handful
// of lifecycle events this package logs at trace/debug level: segment chain
// growth/shrink in the segmented queue (C2), and a writer failing to
// rendezvous with a parked reader because it was already cancelled (C8/C9).
// Kept as tiny helpers so call sites stay one line.

func logSegmentGrowth(l *Logger, oldCap, newCap int) {
	l.Trace().Int(`old_capacity`, oldCap).Int(`new_capacity`, newCap).Log(`segment chain grew`)
}

func logSegmentRetire(l *Logger, drainedCap int) {
	l.Trace().Int(`capacity`, drainedCap).Log(`segment retired`)
}

func logRendezvousMiss(l *Logger) {
	l.Debug().Log(`parked reader cancelled before rendezvous, retrying with next waiter`)
}
