package replicate

// ConflictEngine enumerates conflicted documents and collapses a chosen
// document's revision tree to a single winner via a user-supplied
// Resolver. Every Resolve call is a pure, transactional function - there
// is no state machine here, unlike the Replicator Controller.
type ConflictEngine struct {
	store RevisionStore
}

func NewConflictEngine(store RevisionStore) *ConflictEngine {
	return &ConflictEngine{store: store}
}

// ConflictedDocumentIds returns every DocId with two or more active
// revisions. Order is unspecified and must not be relied on across calls.
func (e *ConflictEngine) ConflictedDocumentIds() []DocId {
	return e.store.ConflictedDocumentIds()
}

// Resolve resolves conflicts on a single document inside one transaction.
//
//   - If doc has fewer than two active revisions, this returns nil without
//     calling resolver at all (ResolverNotFound is never raised for this
//     case - "not conflicted" and "no resolver" are different things).
//   - resolver == nil against an actually-conflicted document raises
//     ResolverNotFound.
//   - A nil resolver result leaves the document untouched and returns nil.
//   - A resolver result whose RevId is not one of the input conflicts
//     raises InvalidResolverOutput and leaves the tree unchanged.
func (e *ConflictEngine) Resolve(doc DocId, resolver Resolver) error {
	active := e.store.ActiveRevisions(doc)
	if len(active) < 2 {
		return nil
	}

	if resolver == nil {
		return replicatorError(ErrResolverNotFound, "no resolver supplied for conflicted document", nil)
	}

	views := make([]RevisionView, len(active))
	for i, rev := range active {
		views[i] = viewOf(rev)
	}

	winner := resolver.Resolve(doc, views)
	if winner == nil {
		return nil
	}

	winnerRev, ok := findByRevId(active, winner.RevId)
	if !ok {
		return replicatorError(ErrInvalidResolverOutput, "resolver returned a revision outside the conflict set", nil)
	}

	return e.store.Transaction(func(tx RevisionStore) error {
		for _, rev := range active {
			if rev.RevId == winnerRev.RevId {
				continue
			}
			_, _, err := tx.PutRevision(doc, rev.RevId, true, map[string]any{}, true, []AttachmentRef{})
			if err != nil {
				return replicatorError(ErrStoreError, "failed to tombstone losing revision", err)
			}
		}
		return nil
	})
}

func findByRevId(revs []*Revision, revId RevId) (*Revision, bool) {
	for _, rev := range revs {
		if rev.RevId == revId {
			return rev, true
		}
	}
	return nil, false
}
