package replicate

import (
	"context"
	"sync/atomic"
)

// fakeTransportJob is a deterministic, manually-driven TransportJob used to
// exercise the controller's state machine without the demo transport's
// timers. Tests call Emit* directly to script events in exact order.
//
// notStarted is deliberately decoupled from whether Start was called, the
// same way demoTransportJob's atomic.Bool (demo_transport.go) is: Start
// only hands the job a task group synchronously, it does not itself mean
// the transport's run has truly begun. Only EmitStarted - standing in for
// the transport's own asynchronous started event - ever flips it, so tests
// can drive the "stop lands before the run truly begins" race (spec S7)
// through Controller exactly as the real transport would trigger it.
type fakeTransportJob struct {
	config    TransportConfig
	sessionId string
	callbacks *CallbackList[TransportObserverFunc]

	started    bool
	stopCalled bool
	notStarted atomic.Bool
}

func newFakeTransportJob(config TransportConfig) *fakeTransportJob {
	job := &fakeTransportJob{
		config:    config,
		sessionId: "fake-session",
		callbacks: NewCallbackList[TransportObserverFunc](),
	}
	job.notStarted.Store(true)
	return job
}

func (j *fakeTransportJob) Start(taskGroup context.Context) {
	j.started = true
}

func (j *fakeTransportJob) Stop() {
	j.stopCalled = true
}

func (j *fakeTransportJob) CancelIfNotStarted() bool {
	return j.notStarted.CompareAndSwap(true, false)
}

func (j *fakeTransportJob) Running() bool               { return j.started && !j.stopCalled }
func (j *fakeTransportJob) Err() error                  { return nil }
func (j *fakeTransportJob) ChangesProcessed() int64     { return 0 }
func (j *fakeTransportJob) ChangesTotal() int64         { return 0 }
func (j *fakeTransportJob) SessionId() string           { return j.sessionId }
func (j *fakeTransportJob) Observe(observer TransportObserverFunc) func() {
	id := j.callbacks.Add(observer)
	return func() { j.callbacks.Remove(id) }
}

func (j *fakeTransportJob) emit(event TransportEvent) {
	for _, cb := range j.callbacks.Get() {
		cb(event)
	}
}

// EmitStarted stands in for the transport's own asynchronous started
// event. Like demoTransportJob's run goroutine, it first claims
// notStarted for itself; if a CancelIfNotStarted already claimed it, the
// run never truly began and no event is emitted.
func (j *fakeTransportJob) EmitStarted() {
	if !j.notStarted.CompareAndSwap(true, false) {
		return
	}
	j.emit(TransportEvent{Kind: TransportStarted, Running: true})
}

func (j *fakeTransportJob) EmitProgress(processed, total int64) {
	j.emit(TransportEvent{Kind: TransportProgress, Running: true, ChangesProcessed: processed, ChangesTotal: total})
}

func (j *fakeTransportJob) EmitStopped(err error) {
	j.emit(TransportEvent{Kind: TransportStopped, Running: false, Error: err})
}

// fakeTransport hands back a fakeTransportJob and remembers it so tests can
// reach in and script it after Start() returns.
type fakeTransport struct {
	lastJob   *fakeTransportJob
	failWith  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) NewJob(ctx context.Context, config TransportConfig) (TransportJob, error) {
	if t.failWith != nil {
		return nil, t.failWith
	}
	job := newFakeTransportJob(config)
	t.lastJob = job
	return job, nil
}
