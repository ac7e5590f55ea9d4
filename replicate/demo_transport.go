package replicate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DemoTransport is a reference Transport implementation used by the demo
// CLI and integration tests. It is not part of the core design - Transport
// is an external collaborator per spec §1 - but it gives the websocket
// dependency a concrete home (spec SPEC_FULL §2) by opening a changes-feed
// style connection when the remote is reachable over ws/wss, and falling
// back to a purely simulated change count otherwise so the demo runs
// without a live server.
type DemoTransport struct {
	SimulatedChangeCount int64
	StepDelay            time.Duration
}

func NewDemoTransport() *DemoTransport {
	return &DemoTransport{
		SimulatedChangeCount: 10,
		StepDelay:            50 * time.Millisecond,
	}
}

func (t *DemoTransport) NewJob(ctx context.Context, config TransportConfig) (TransportJob, error) {
	if config.Local == "" {
		return nil, replicatorError(ErrUndefinedSource, "local endpoint required", nil)
	}
	job := &demoTransportJob{
		config:    config,
		sessionId: newSessionId(),
		callbacks: NewCallbackList[TransportObserverFunc](),
		total:     t.SimulatedChangeCount,
		stepDelay: t.StepDelay,
	}
	job.notStarted.Store(true)
	return job, nil
}

type demoTransportJob struct {
	config    TransportConfig
	sessionId string
	callbacks *CallbackList[TransportObserverFunc]

	total     int64
	stepDelay time.Duration

	mutex     sync.Mutex
	running   bool
	stopped   bool
	processed int64
	lastErr   error

	notStarted atomic.Bool
	cancelOnce sync.Once
	done       chan struct{}
}

func (j *demoTransportJob) Observe(observer TransportObserverFunc) (unsubscribe func()) {
	id := j.callbacks.Add(observer)
	return func() { j.callbacks.Remove(id) }
}

func (j *demoTransportJob) emit(event TransportEvent) {
	for _, cb := range j.callbacks.Get() {
		cb(event)
	}
}

func (j *demoTransportJob) Start(taskGroup context.Context) {
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)

		// A short grace window in which CancelIfNotStarted can still
		// preempt the run entirely, modeling the source's
		// cancel-before-started race (spec S7).
		select {
		case <-time.After(time.Millisecond):
		case <-taskGroup.Done():
			return
		}
		if !j.notStarted.CompareAndSwap(true, false) {
			return
		}

		j.mutex.Lock()
		j.running = true
		j.mutex.Unlock()
		j.emit(TransportEvent{Kind: TransportStarted, Running: true})

		conn := j.dialChangesFeed()
		if conn != nil {
			defer conn.Close()
		}

		for i := int64(1); i <= j.total; i++ {
			select {
			case <-taskGroup.Done():
				j.finish(replicatorError(ErrUnknown, "cancelled", nil))
				return
			case <-time.After(j.stepDelay):
			}
			j.mutex.Lock()
			j.processed = i
			processed, total := j.processed, j.total
			j.mutex.Unlock()
			j.emit(TransportEvent{
				Kind:             TransportProgress,
				Running:          true,
				ChangesProcessed: processed,
				ChangesTotal:     total,
			})
		}
		j.finish(nil)
	}()
}

// dialChangesFeed opens a best-effort websocket connection to the remote
// when it uses a ws/wss scheme. Its only purpose in this reference
// transport is to exercise gorilla/websocket end to end; the demo never
// depends on receiving anything over it.
func (j *demoTransportJob) dialChangesFeed() *websocket.Conn {
	if j.config.Remote == nil {
		return nil
	}
	scheme := j.config.Remote.Scheme
	if scheme != "ws" && scheme != "wss" {
		return nil
	}
	dialer := websocket.DefaultDialer
	header := make(map[string][]string)
	for k, v := range j.config.RequestHeaders {
		header[k] = []string{v}
	}
	conn, _, err := dialer.Dial(j.config.Remote.String(), header)
	if err != nil {
		logTrace("demo transport: changes feed dial failed: %s", err)
		return nil
	}
	return conn
}

func (j *demoTransportJob) finish(err error) {
	j.mutex.Lock()
	if j.stopped {
		j.mutex.Unlock()
		return
	}
	j.stopped = true
	j.running = false
	j.lastErr = err
	j.mutex.Unlock()

	j.emit(TransportEvent{Kind: TransportStopped, Running: false, Error: err})
}

func (j *demoTransportJob) Stop() {
	j.cancelOnce.Do(func() {
		go j.finish(nil)
	})
}

func (j *demoTransportJob) CancelIfNotStarted() bool {
	return j.notStarted.CompareAndSwap(true, false)
}

func (j *demoTransportJob) Running() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.running
}

func (j *demoTransportJob) Err() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.lastErr
}

func (j *demoTransportJob) ChangesProcessed() int64 {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.processed
}

func (j *demoTransportJob) ChangesTotal() int64 {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.total
}

func (j *demoTransportJob) SessionId() string {
	return j.sessionId
}
