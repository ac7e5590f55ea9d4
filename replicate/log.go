package replicate

import (
	"github.com/golang/glog"
)

// Logging convention in this package:
// Info:
//     controller state transitions (logStateTransition).
//     progress callbacks are not logged.
// Warning:
//     errors that put the controller into its Error state (logError).
// V(2):
//     trace events (logTrace) - the checkpoint lookup at Start, including
//     a checkpoint store that failed to read, and the demo transport's
//     changes-feed dial failures.

const traceVerbosity = glog.Level(2)

func logStateTransition(tag string, from, to ReplicatorState) {
	glog.Infof("[%s] %s -> %s", tag, from, to)
}

func logError(tag string, err error) {
	glog.Warningf("[%s] %s", tag, err)
}

func logTrace(format string, args ...any) {
	glog.V(traceVerbosity).Infof(format, args...)
}
