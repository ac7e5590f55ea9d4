package replicate

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFactoryNewReplicatorValidatesConfiguration(t *testing.T) {
	factory := NewFactory(newFakeTransport(), nil)
	opts := validOpts()
	opts.Remote = ""

	_, _, err := factory.NewReplicator(opts)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, len(factory.LiveReplicators()), 0)
}

func TestFactoryTracksCreatedControllersUntilForgotten(t *testing.T) {
	factory := NewFactory(newFakeTransport(), nil)
	_, id, err := factory.NewReplicator(validOpts())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(factory.LiveReplicators()), 1)

	factory.Forget(id)
	assert.Equal(t, len(factory.LiveReplicators()), 0)
}

func TestFactoryActiveCountReflectsControllerState(t *testing.T) {
	transport := newFakeTransport()
	factory := NewFactory(transport, nil)

	controller, _, err := factory.NewReplicator(validOpts())
	assert.Equal(t, err, nil)
	assert.Equal(t, factory.ActiveCount(), 1)

	_ = controller.Start()
	assert.Equal(t, factory.ActiveCount(), 1)

	controller.Stop()
	assert.Equal(t, factory.ActiveCount(), 0)
}

func TestFactoryDoesNotRetainControllersItself(t *testing.T) {
	// Forgetting the diagnostic entry must not stop a still-running
	// controller: self-retention lives in the live set, not the factory.
	transport := newFakeTransport()
	factory := NewFactory(transport, nil)

	controller, id, _ := factory.NewReplicator(validOpts())
	_ = controller.Start()
	factory.Forget(id)

	transport.lastJob.EmitStarted()
	assert.Equal(t, controller.State(), StateStarted)
}
