package replicate

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// newRevId mints a fresh RevId for the given generation. Grounded in the
// teacher's connect.go NewId(), which uses ulid.Make() for a compact,
// sortable, collision-resistant identifier - here the full 26-character
// ULID string serves as the suffix after the generation prefix.
func newRevId(generation int) RevId {
	digest := ulid.Make().String()
	return RevId(fmt.Sprintf("%d-%s", generation, digest))
}

// newSessionId mints a replication session id, grounded in the same
// ulid.Make() convention.
func newSessionId() string {
	return ulid.Make().String()
}
