package replicate

import (
	"fmt"
	"strconv"
	"strings"
)

// DocId identifies a document. Opaque outside of equality and ordering.
type DocId string

// RevId identifies a revision. Encodes its generation as an integer
// prefix, e.g. "3-abcde".
type RevId string

// Generation parses the integer prefix of a RevId. Revision.Generation
// holds the same number: the store sets both from one value when it
// creates a revision.
func (r RevId) Generation() (int, error) {
	s := string(r)
	i := strings.IndexByte(s, '-')
	if i <= 0 {
		return 0, replicatorError(ErrStoreError, fmt.Sprintf("malformed rev id %q", s), nil)
	}
	gen, err := strconv.Atoi(s[:i])
	if err != nil || gen <= 0 {
		return 0, replicatorError(ErrStoreError, fmt.Sprintf("malformed rev id %q", s), err)
	}
	return gen, nil
}

// AttachmentRef is keyed by the sequence of the revision that introduced
// or carried it, per original_source/CloudantSync/Attachments/CDTAttachment.h.
type AttachmentRef struct {
	Sequence      uint64
	Filename      string
	MimeType      string
	Length        int64
	Revpos        int
	Encoding      string
	EncodedLength int64
}

// Revision is a single node in a document's revision DAG.
type Revision struct {
	DocId       DocId
	RevId       RevId
	Generation  int
	ParentRevId RevId // empty for a root revision
	Deleted     bool
	Body        map[string]any
	Sequence    uint64
	Attachments []AttachmentRef
}

func (r *Revision) HasParent() bool {
	return r.ParentRevId != ""
}

// RevisionView is the read-only projection of a Revision handed to
// resolvers and to the high-level side of the filter bridge. It never
// carries attachments across the filter boundary (spec C3).
type RevisionView struct {
	DocId    DocId
	RevId    RevId
	Body     map[string]any
	Deleted  bool
	Sequence uint64
}

func viewOf(rev *Revision) RevisionView {
	return RevisionView{
		DocId:    rev.DocId,
		RevId:    rev.RevId,
		Body:     rev.Body,
		Deleted:  rev.Deleted,
		Sequence: rev.Sequence,
	}
}
