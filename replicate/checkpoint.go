package replicate

import "fmt"

// Checkpoint is the minimal resume marker CDTDatastore-style replicators
// persist per replication so a restart does not replay the full change
// feed. This package never writes one - CheckpointStore is an external
// collaborator, like RevisionStore - it only reads one, opportunistically,
// for diagnostics at Start.
type Checkpoint struct {
	ReplicationId string
	LastSequence  string
}

// CheckpointStore is consumed read-only by the controller.
type CheckpointStore interface {
	Get(replicationId string) (Checkpoint, error)
}

func replicationId(local string, remote string, push bool) string {
	return fmt.Sprintf("%s:%s:%v", local, remote, push)
}
