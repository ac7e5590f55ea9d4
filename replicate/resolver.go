package replicate

// Resolver decides how to collapse a conflicted document. Resolve receives
// every active revision for doc and returns the one that should survive,
// or nil to leave the document conflicted. A non-nil return MUST be one
// of the RevisionViews passed in, compared by RevId - the Conflict Engine
// rejects anything else.
type Resolver interface {
	Resolve(doc DocId, conflicts []RevisionView) *RevisionView
}

// ResolverFunc adapts a plain function to Resolver, mirroring the
// function-to-interface adapter pattern the teacher uses for its
// apiCallback/simpleApiCallback pair in api.go.
type ResolverFunc func(doc DocId, conflicts []RevisionView) *RevisionView

func (f ResolverFunc) Resolve(doc DocId, conflicts []RevisionView) *RevisionView {
	return f(doc, conflicts)
}
