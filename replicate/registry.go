package replicate

import (
	"sync"

	"golang.org/x/exp/maps"
)

// Factory creates Replicator Controllers, validating configuration up
// front, and tracks the set of controllers it has created for
// diagnostics (spec C6). It never itself retains a running controller -
// self-retention (liveset.go) is the controller's own responsibility, so
// a Factory can be garbage collected freely while replications it created
// keep running.
type Factory struct {
	defaultTransport Transport
	checkpointStore  CheckpointStore

	mutex   sync.Mutex
	nextId  int
	entries map[int]*Controller
}

func NewFactory(transport Transport, checkpointStore CheckpointStore) *Factory {
	return &Factory{
		defaultTransport: transport,
		checkpointStore:  checkpointStore,
		entries:          map[int]*Controller{},
	}
}

// NewReplicator validates opts, builds a Controller in state Pending, and
// registers it for diagnostics. The returned id can be used with Forget to
// drop the diagnostic entry once the caller no longer cares about it -
// this has no effect on whether the controller is still self-retained.
func (f *Factory) NewReplicator(opts ReplicatorOptions) (*Controller, int, error) {
	config, err := NewReplicatorConfiguration(opts)
	if err != nil {
		return nil, 0, err
	}

	controller := newController(config, f.defaultTransport, f.checkpointStore)

	f.mutex.Lock()
	id := f.nextId
	f.nextId++
	f.entries[id] = controller
	f.mutex.Unlock()

	return controller, id, nil
}

// Forget removes the diagnostic entry for id. It does not stop or release
// the controller.
func (f *Factory) Forget(id int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.entries, id)
}

// LiveReplicators returns a snapshot of every controller this factory has
// created and not yet Forget-ten, regardless of their current state.
func (f *Factory) LiveReplicators() []*Controller {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return maps.Values(f.entries)
}

// ActiveCount returns how many of the factory's tracked controllers are
// currently in an active (non-terminal) state.
func (f *Factory) ActiveCount() int {
	f.mutex.Lock()
	controllers := maps.Values(f.entries)
	f.mutex.Unlock()

	count := 0
	for _, c := range controllers {
		if c.IsActive() {
			count++
		}
	}
	return count
}
