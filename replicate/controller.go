package replicate

import (
	"context"
	"sync"
)

// ReplicatorState is one of the six states in the controller's state
// machine (spec C5). Pending, Started and Stopping are active; the rest
// are terminal and absorbing.
type ReplicatorState string

const (
	StatePending  ReplicatorState = "Pending"
	StateStarted  ReplicatorState = "Started"
	StateStopping ReplicatorState = "Stopping"
	StateStopped  ReplicatorState = "Stopped"
	StateComplete ReplicatorState = "Complete"
	StateError    ReplicatorState = "Error"
)

func (s ReplicatorState) IsActive() bool {
	switch s {
	case StatePending, StateStarted, StateStopping:
		return true
	default:
		return false
	}
}

func (s ReplicatorState) IsTerminal() bool {
	return !s.IsActive()
}

// ControllerDelegate holds optional fan-out handlers. Each field may be
// nil; the controller checks before calling, per the design note that
// dynamic-dispatch delegate methods become explicit Option-valued
// handlers rather than a fixed interface every implementer must satisfy
// in full.
type ControllerDelegate struct {
	DidChangeState    func(c *Controller)
	DidChangeProgress func(c *Controller)
	DidComplete       func(c *Controller)
	DidError          func(c *Controller, err error)
}

// Controller is the fire-and-forget handle driving a single push or pull
// replication session, grounded in the mutex-guarded, callback-observing
// components of the teacher (ContractManager, RemoteUserNatMultiClientMonitor):
// a single struct mutex protects all mutable state, and a CallbackList-style
// Observe subscription bridges the transport's async events into the
// controller's own state machine.
type Controller struct {
	config          *ReplicatorConfiguration
	transport       Transport
	checkpointStore CheckpointStore

	mutex sync.Mutex

	state   ReplicatorState
	started bool

	job         TransportJob
	unsubscribe func()
	cancel      context.CancelFunc

	changesProcessed int64
	changesTotal     int64
	err              error
	sessionId        string

	delegate *ControllerDelegate
}

// newController is unexported: controllers are minted via a Factory
// (registry.go) so the live registry always knows about every one that
// exists, per spec C6.
func newController(config *ReplicatorConfiguration, transport Transport, checkpointStore CheckpointStore) *Controller {
	return &Controller{
		config:          config,
		transport:       transport,
		checkpointStore: checkpointStore,
		state:           StatePending,
	}
}

// Start may be called at most once. A second call, or any call once the
// state has left Pending (including via Stop), fails with AlreadyStarted
// and mutates nothing.
func (c *Controller) Start() error {
	c.mutex.Lock()
	if c.started || c.state != StatePending {
		c.mutex.Unlock()
		return replicatorError(ErrAlreadyStarted, "start called more than once or after stop", nil)
	}
	c.started = true
	c.mutex.Unlock()

	c.logCheckpoint()

	ctx, cancel := context.WithCancel(context.Background())
	transportConfig := c.buildTransportConfig()

	job, err := c.transport.NewJob(ctx, transportConfig)
	if err != nil {
		cancel()
		buildErr := replicatorError(ErrTransportInitFailed, "transport refused construction", err)

		c.mutex.Lock()
		oldState := c.state
		c.state = StateError
		c.err = buildErr
		c.mutex.Unlock()

		logStateTransition("controller", oldState, StateError)
		c.fireStateChanged()
		c.fireError(buildErr)
		return buildErr
	}

	c.mutex.Lock()
	c.job = job
	c.cancel = cancel
	c.sessionId = job.SessionId()
	// Reset counters before subscribing to progress events, closing the
	// race the source left open between the end-of-start reset and
	// concurrently arriving progress callbacks (spec open question).
	c.changesProcessed = 0
	c.changesTotal = 0
	// Self-retention must be established in the same critical section
	// that publishes c.job: otherwise a concurrent Stop() can observe
	// c.job != nil, cancel, and release before this retain ever runs,
	// leaving the controller permanently in the live set once retain
	// finally executes.
	globalLiveSet.retain(c)
	c.mutex.Unlock()

	unsubscribe := job.Observe(c.handleTransportEvent)
	c.mutex.Lock()
	c.unsubscribe = unsubscribe
	c.mutex.Unlock()

	job.Start(ctx)
	return nil
}

func (c *Controller) logCheckpoint() {
	if c.checkpointStore == nil {
		return
	}
	id := replicationId(c.config.Local(), c.config.Remote().String(), c.config.Direction() == Push)
	checkpoint, err := c.checkpointStore.Get(id)
	if err != nil {
		logTrace("no checkpoint for %s: %s", id, err)
		return
	}
	logTrace("resuming %s from sequence %s", id, checkpoint.LastSequence)
}

func (c *Controller) buildTransportConfig() TransportConfig {
	cfg := c.config
	var filter TransportFilter
	if cfg.Direction() == Push && cfg.PushFilter() != nil {
		filter = WrapUserFilter(cfg.PushFilter())
	}
	return TransportConfig{
		Local:          cfg.Local(),
		Remote:         cfg.Remote(),
		Push:           cfg.Direction() == Push,
		Continuous:     false,
		Interceptors:   cfg.Interceptors(),
		FilterName:     cfg.FilterName(),
		FilterParams:   cfg.FilterParams(),
		RequestHeaders: cfg.Headers(),
		Reset:          false,
		Filter:         filter,
	}
}

// Stop requests cancellation and is idempotent and safe to call from any
// state. It returns whether the cancellation request was accepted;
// observing actual termination still requires watching State() or the
// delegate.
func (c *Controller) Stop() bool {
	c.mutex.Lock()
	switch c.state {
	case StateStopped, StateComplete, StateError:
		c.mutex.Unlock()
		return false

	case StateStopping:
		c.mutex.Unlock()
		return true

	case StatePending:
		job := c.job
		if job == nil {
			oldState := c.state
			c.state = StateStopped
			c.mutex.Unlock()
			logStateTransition("controller", oldState, StateStopped)
			c.fireStateChanged()
			return true
		}
		c.mutex.Unlock()

		if !job.CancelIfNotStarted() {
			return false
		}

		c.mutex.Lock()
		if c.state != StatePending {
			// Raced with the transport's own started/stopped event.
			c.mutex.Unlock()
			return false
		}
		oldState := c.state
		c.state = StateStopped
		unsubscribe := c.unsubscribe
		cancel := c.cancel
		c.mutex.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		if cancel != nil {
			cancel()
		}
		globalLiveSet.release(c)

		logStateTransition("controller", oldState, StateStopped)
		c.fireStateChanged()
		return true

	case StateStarted:
		job := c.job
		oldState := c.state
		c.state = StateStopping
		c.mutex.Unlock()

		logStateTransition("controller", oldState, StateStopping)
		c.fireStateChanged()
		job.Stop()
		return true

	default:
		c.mutex.Unlock()
		return false
	}
}

func (c *Controller) handleTransportEvent(event TransportEvent) {
	switch event.Kind {
	case TransportStarted:
		c.onTransportStarted()
	case TransportProgress:
		c.onTransportProgress(event)
	case TransportStopped:
		c.onTransportStopped(event)
	}
}

// onTransportStarted holds the lock across both the state mutation and the
// decision of whether to notify the delegate, releasing before the
// delegate call itself - the resolution to this design's open question
// about the source's replicatorStarted handler.
func (c *Controller) onTransportStarted() {
	c.mutex.Lock()
	oldState := c.state
	shouldNotify := false
	if c.state == StatePending {
		c.state = StateStarted
		shouldNotify = true
	}
	c.mutex.Unlock()

	if shouldNotify {
		logStateTransition("controller", oldState, StateStarted)
		c.fireStateChanged()
	}
}

func (c *Controller) onTransportProgress(event TransportEvent) {
	c.mutex.Lock()
	if c.state.IsTerminal() {
		c.mutex.Unlock()
		return
	}
	oldState := c.state
	oldProcessed, oldTotal := c.changesProcessed, c.changesTotal

	c.changesProcessed = event.ChangesProcessed
	c.changesTotal = event.ChangesTotal
	if event.Running && c.state == StatePending {
		c.state = StateStarted
	}

	newState := c.state
	stateChanged := oldState != newState
	progressChanged := oldProcessed != c.changesProcessed || oldTotal != c.changesTotal
	c.mutex.Unlock()

	if stateChanged {
		logStateTransition("controller", oldState, newState)
		c.fireStateChanged()
	}
	if progressChanged {
		c.fireProgressChanged()
	}
}

// onTransportStopped is the only path to a terminal state from Started or
// Stopping (spec item 5). It selects Error if the transport surfaced one,
// otherwise Complete from Started or Stopped from Stopping/Pending, then
// detaches observers and releases the self-retention exactly once.
func (c *Controller) onTransportStopped(event TransportEvent) {
	c.mutex.Lock()
	if c.state.IsTerminal() {
		c.mutex.Unlock()
		return
	}
	oldState := c.state

	var newState ReplicatorState
	if event.Error != nil {
		newState = StateError
		c.err = c.projectTransportError(event.Error)
	} else if oldState == StateStarted {
		newState = StateComplete
	} else {
		newState = StateStopped
	}
	c.state = newState
	c.job = nil
	unsubscribe := c.unsubscribe
	cancel := c.cancel
	c.mutex.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	globalLiveSet.release(c)

	logStateTransition("controller", oldState, newState)
	c.fireStateChanged()

	completing := oldState.IsActive() && newState.IsTerminal() && newState != StateError
	erroring := newState == StateError
	if erroring {
		logError("controller", c.err)
	}
	if completing {
		c.fireComplete()
	}
	if erroring {
		c.fireError(c.err)
	}
}

func (c *Controller) projectTransportError(err error) error {
	if IsCode(err, ErrLocalDatastoreDeleted) {
		return replicatorError(ErrLocalDatastoreDeleted, "local datastore deleted mid-replication", err)
	}
	if te, ok := err.(*Error); ok {
		return newError(DomainReplicator, te.Code, te.Message, te)
	}
	return replicatorError(ErrUnknown, "transport reported an error", err)
}

// State returns the controller's current state.
func (c *Controller) State() ReplicatorState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// IsActive reports whether State() is one of Pending, Started, Stopping.
func (c *Controller) IsActive() bool {
	return c.State().IsActive()
}

func (c *Controller) ChangesProcessed() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.changesProcessed
}

func (c *Controller) ChangesTotal() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.changesTotal
}

func (c *Controller) SessionId() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sessionId
}

// Error yields no error while the controller is active regardless of the
// transport's mid-flight state; once terminal it returns the projected
// error, if any.
func (c *Controller) Error() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state.IsActive() {
		return nil
	}
	return c.err
}

func (c *Controller) SetDelegate(delegate *ControllerDelegate) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.delegate = delegate
}

func (c *Controller) fireStateChanged() {
	d := c.currentDelegate()
	if d != nil && d.DidChangeState != nil {
		d.DidChangeState(c)
	}
}

func (c *Controller) fireProgressChanged() {
	d := c.currentDelegate()
	if d != nil && d.DidChangeProgress != nil {
		d.DidChangeProgress(c)
	}
}

func (c *Controller) fireComplete() {
	d := c.currentDelegate()
	if d != nil && d.DidComplete != nil {
		d.DidComplete(c)
	}
}

func (c *Controller) fireError(err error) {
	d := c.currentDelegate()
	if d != nil && d.DidError != nil {
		d.DidError(c, err)
	}
}

func (c *Controller) currentDelegate() *ControllerDelegate {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.delegate
}
