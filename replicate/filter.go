package replicate

// LowLevelRevision is the shape the Transport collaborator hands to a
// TransportFilter - it is intentionally a different type from Revision so
// the filter bridge has an explicit, narrow surface to project from.
type LowLevelRevision struct {
	DocId       DocId
	RevId       RevId
	Body        map[string]any
	Deleted     bool
	Sequence    uint64
	Attachments []AttachmentRef
}

// FilterParams carries whatever parameter map the transport passes
// through to a filter invocation.
type FilterParams map[string]string

// UserFilter is the high-level predicate a push replication config
// accepts. It never sees attachments (spec C3: "attachments intentionally
// omitted from the filter view").
type UserFilter func(view RevisionView, params FilterParams) bool

// TransportFilter is the low-level predicate shape the Transport
// collaborator actually invokes.
type TransportFilter func(rev LowLevelRevision, params FilterParams) bool

// WrapUserFilter adapts a UserFilter into a TransportFilter by projecting
// each low-level revision into the high-level view before invocation. The
// user filter is captured by value at wrap time: later mutation of the
// configuration the filter came from has no effect on filtering already
// in flight, mirroring the teacher's simpleApiCallback closures in api.go
// which capture their callback at construction, not at call time.
func WrapUserFilter(userFilter UserFilter) TransportFilter {
	capturedFilter := userFilter
	return func(rev LowLevelRevision, params FilterParams) bool {
		view := RevisionView{
			DocId:    rev.DocId,
			RevId:    rev.RevId,
			Body:     rev.Body,
			Deleted:  rev.Deleted,
			Sequence: rev.Sequence,
		}
		return capturedFilter(view, params)
	}
}
