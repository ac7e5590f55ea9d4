package replicate

import (
	"sort"
	"sync"
)

// PutStatus reports what PutRevision actually did, mirroring the
// "&mut status" out-parameter from the consumed RevisionStore interface.
type PutStatus struct {
	Created  bool
	Conflict bool
}

// RevisionStore is the transactional persistence collaborator this
// package consumes. It is out of scope for this design (interface only) -
// production implementations back it with a real relational table. This
// file also provides MemoryRevisionStore, an in-memory reference
// implementation used by tests and the demo CLI.
type RevisionStore interface {
	ActiveRevisions(doc DocId) []*Revision
	PutRevision(doc DocId, parentRevId RevId, deleted bool, body map[string]any, allowConflict bool, attachments []AttachmentRef) (*Revision, PutStatus, error)
	Transaction(f func(tx RevisionStore) error) error
	AttachmentsAtSequence(seq uint64) []AttachmentRef
	Get(doc DocId) (*Revision, error)
	ConflictedDocumentIds() []DocId
}

// MemoryRevisionStore is a single-process, mutex-serialized RevisionStore.
// Grounded in the teacher's store.go stub (subscribe/stitch commentary) and
// generalized into a working transactional store, in the mutex-guarded
// style of transfer_contract_manager.go.
type MemoryRevisionStore struct {
	mutex    sync.Mutex
	tree     *RevisionTree
	nextSeq  uint64
	inTxCall bool
}

func NewMemoryRevisionStore() *MemoryRevisionStore {
	return &MemoryRevisionStore{
		tree: newRevisionTree(),
	}
}

func (s *MemoryRevisionStore) ActiveRevisions(doc DocId) []*Revision {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.tree.ActiveRevisions(doc)
}

func (s *MemoryRevisionStore) ConflictedDocumentIds() []DocId {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return conflictedDocumentIdsOf(s.tree)
}

func conflictedDocumentIdsOf(tree *RevisionTree) []DocId {
	var conflicted []DocId
	for _, doc := range tree.documentIds() {
		if len(tree.ActiveRevisions(doc)) >= 2 {
			conflicted = append(conflicted, doc)
		}
	}
	return conflicted
}

// PutRevision inserts a new revision as a child of parentRevId (or as a
// root revision when parentRevId is empty). allowConflict=false rejects
// the insert when parentRevId is not currently an active leaf and doc
// already has at least one active revision - this is how ordinary replication
// writes refuse to fork the tree, while the Conflict Engine's tombstone
// inserts always pass allowConflict=true since they target a specific
// losing leaf regardless of how many other active leaves exist.
func (s *MemoryRevisionStore) PutRevision(doc DocId, parentRevId RevId, deleted bool, body map[string]any, allowConflict bool, attachments []AttachmentRef) (*Revision, PutStatus, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return putRevisionInto(s.tree, &s.nextSeq, doc, parentRevId, deleted, body, allowConflict, attachments)
}

// putRevisionInto implements the actual insert against an arbitrary tree
// and sequence counter, so both the committed store and a transaction's
// staged clone (see Transaction below) share one code path.
func putRevisionInto(tree *RevisionTree, nextSeq *uint64, doc DocId, parentRevId RevId, deleted bool, body map[string]any, allowConflict bool, attachments []AttachmentRef) (*Revision, PutStatus, error) {
	var parent *Revision
	generation := 1
	if parentRevId != "" {
		p, ok := tree.get(parentRevId)
		if !ok {
			return nil, PutStatus{}, replicatorError(ErrStoreError, "parent revision not found", nil)
		}
		parent = p
		generation = parent.Generation + 1

		if !allowConflict {
			active := tree.ActiveRevisions(doc)
			if len(active) > 0 && !isActiveLeaf(active, parentRevId) {
				return nil, PutStatus{Conflict: true}, replicatorError(ErrStoreError, "parent is not an active leaf", nil)
			}
		}
	}

	*nextSeq++
	if attachments == nil && parent != nil && parent.Attachments != nil {
		// Inherited refs keep the parent's Revpos and take this revision's
		// sequence.
		attachments = make([]AttachmentRef, len(parent.Attachments))
		for i, ref := range parent.Attachments {
			ref.Sequence = *nextSeq
			attachments[i] = ref
		}
	}
	rev := &Revision{
		DocId:       doc,
		RevId:       newRevId(generation),
		Generation:  generation,
		ParentRevId: parentRevId,
		Deleted:     deleted,
		Body:        body,
		Sequence:    *nextSeq,
		Attachments: attachments,
	}
	tree.insert(rev)
	return rev, PutStatus{Created: true}, nil
}

func isActiveLeaf(active []*Revision, revId RevId) bool {
	for _, rev := range active {
		if rev.RevId == revId {
			return true
		}
	}
	return false
}

// Transaction runs f against a private clone of the tree so that a
// failure partway through - e.g. the Conflict Engine's tombstone loop
// (conflict.go) erroring after tombstoning only some of a document's
// losing revisions - leaves the committed store completely untouched
// (spec §7: "the conflict engine never partially mutates: any failure
// rolls back the transaction"). The clone only becomes the store's tree
// if f returns nil; any error discards it. The store mutex is held for
// the whole call, so no other caller can observe the staged tree before
// it either commits or is thrown away.
func (s *MemoryRevisionStore) Transaction(f func(tx RevisionStore) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.inTxCall {
		return replicatorError(ErrStoreError, "nested transaction", nil)
	}
	s.inTxCall = true
	defer func() { s.inTxCall = false }()

	staged := s.tree.clone()
	stagedSeq := s.nextSeq
	tx := &txRevisionStore{tree: staged, nextSeq: &stagedSeq}
	if err := f(tx); err != nil {
		return err
	}
	s.tree = staged
	s.nextSeq = stagedSeq
	return nil
}

func (s *MemoryRevisionStore) AttachmentsAtSequence(seq uint64) []AttachmentRef {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return attachmentsAtSequenceOf(s.tree, seq)
}

func attachmentsAtSequenceOf(tree *RevisionTree, seq uint64) []AttachmentRef {
	revId, ok := tree.revIdAtSequence(seq)
	if !ok {
		return nil
	}
	return tree.revisions[revId].Attachments
}

// Get returns the current winning revision for doc: the sole active
// revision if resolved, or (while still conflicted) the active revision
// with the highest generation, breaking ties by RevId - the same
// deterministic-but-arbitrary winner heuristic CouchDB itself uses for
// display purposes only. This is a test/diagnostic convenience, not part
// of the conflict engine's decision process.
func (s *MemoryRevisionStore) Get(doc DocId) (*Revision, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return winnerOf(s.tree, doc)
}

func winnerOf(tree *RevisionTree, doc DocId) (*Revision, error) {
	active := tree.ActiveRevisions(doc)
	if len(active) == 0 {
		return nil, replicatorError(ErrStoreError, "document not found", nil)
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Generation != active[j].Generation {
			return active[i].Generation > active[j].Generation
		}
		return active[i].RevId > active[j].RevId
	})
	return active[0], nil
}

// txRevisionStore is handed to a Transaction callback. It operates
// entirely on the staged clone Transaction built, never on the committed
// store's tree - see Transaction's doc comment for why.
type txRevisionStore struct {
	tree    *RevisionTree
	nextSeq *uint64
}

func (t *txRevisionStore) ActiveRevisions(doc DocId) []*Revision {
	return t.tree.ActiveRevisions(doc)
}

func (t *txRevisionStore) ConflictedDocumentIds() []DocId {
	return conflictedDocumentIdsOf(t.tree)
}

func (t *txRevisionStore) PutRevision(doc DocId, parentRevId RevId, deleted bool, body map[string]any, allowConflict bool, attachments []AttachmentRef) (*Revision, PutStatus, error) {
	return putRevisionInto(t.tree, t.nextSeq, doc, parentRevId, deleted, body, allowConflict, attachments)
}

func (t *txRevisionStore) Transaction(f func(tx RevisionStore) error) error {
	return f(t)
}

func (t *txRevisionStore) AttachmentsAtSequence(seq uint64) []AttachmentRef {
	return attachmentsAtSequenceOf(t.tree, seq)
}

func (t *txRevisionStore) Get(doc DocId) (*Revision, error) {
	return winnerOf(t.tree, doc)
}
