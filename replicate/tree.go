package replicate

// RevisionTree is the in-memory representation of a set of documents'
// revision DAGs. It is a pure index: it never itself decides what is
// conflicted-versus-resolved, that judgment lives in the Conflict Engine
// (conflict.go). RevisionTree only ever grows; nothing here removes a
// revision.
type RevisionTree struct {
	revisions map[RevId]*Revision
	byDoc     map[DocId][]RevId // insertion order, all revisions
	bySeq     map[uint64]RevId
}

func newRevisionTree() *RevisionTree {
	return &RevisionTree{
		revisions: map[RevId]*Revision{},
		byDoc:     map[DocId][]RevId{},
		bySeq:     map[uint64]RevId{},
	}
}

// clone returns an independent copy of t. Existing *Revision values are
// never mutated once inserted, so they are safe to share between t and the
// clone; only the maps and the per-doc slices need copying so that writes
// against the clone can never be observed through t before a transaction
// commits.
func (t *RevisionTree) clone() *RevisionTree {
	revisions := make(map[RevId]*Revision, len(t.revisions))
	for revId, rev := range t.revisions {
		revisions[revId] = rev
	}
	byDoc := make(map[DocId][]RevId, len(t.byDoc))
	for doc, revIds := range t.byDoc {
		copied := make([]RevId, len(revIds))
		copy(copied, revIds)
		byDoc[doc] = copied
	}
	bySeq := make(map[uint64]RevId, len(t.bySeq))
	for seq, revId := range t.bySeq {
		bySeq[seq] = revId
	}
	return &RevisionTree{revisions: revisions, byDoc: byDoc, bySeq: bySeq}
}

// insert adds rev to the tree. It does not enforce the "parent already
// present" invariant - callers (the RevisionStore implementation) own
// transactional validation.
func (t *RevisionTree) insert(rev *Revision) {
	t.revisions[rev.RevId] = rev
	t.byDoc[rev.DocId] = append(t.byDoc[rev.DocId], rev.RevId)
	t.bySeq[rev.Sequence] = rev.RevId
}

func (t *RevisionTree) get(revId RevId) (*Revision, bool) {
	rev, ok := t.revisions[revId]
	return rev, ok
}

func (t *RevisionTree) revIdAtSequence(seq uint64) (RevId, bool) {
	revId, ok := t.bySeq[seq]
	return revId, ok
}

// hasChild reports whether any revision in the tree names revId as its
// parent - i.e. revId is not a leaf.
func (t *RevisionTree) hasChild(revId RevId) bool {
	for _, candidateId := range t.byDoc[t.revisions[revId].DocId] {
		if t.revisions[candidateId].ParentRevId == revId {
			return true
		}
	}
	return false
}

// ActiveRevisions returns every non-deleted leaf revision of doc. Order is
// unspecified.
func (t *RevisionTree) ActiveRevisions(doc DocId) []*Revision {
	var active []*Revision
	for _, revId := range t.byDoc[doc] {
		rev := t.revisions[revId]
		if rev.Deleted {
			continue
		}
		if t.hasChild(revId) {
			continue
		}
		active = append(active, rev)
	}
	return active
}

// Generation returns the stored generation of revId when it is present in
// the tree, and otherwise parses revId's generation prefix.
func (t *RevisionTree) Generation(revId RevId) (int, error) {
	if rev, ok := t.revisions[revId]; ok {
		return rev.Generation, nil
	}
	return revId.Generation()
}

// ParentChain walks from rev to the root, inclusive of rev, root last.
func (t *RevisionTree) ParentChain(rev *Revision) []*Revision {
	chain := []*Revision{rev}
	current := rev
	for current.HasParent() {
		parent, ok := t.revisions[current.ParentRevId]
		if !ok {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain
}

// documentIds returns every DocId with at least one revision, order
// unspecified.
func (t *RevisionTree) documentIds() []DocId {
	ids := make([]DocId, 0, len(t.byDoc))
	for id := range t.byDoc {
		ids = append(ids, id)
	}
	return ids
}
