package replicate

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

// biggestGenerationResolver picks the conflicting revision with the
// highest generation, mirroring the "biggest generation wins" resolver
// shape used across every scenario below.
func biggestGenerationResolver() Resolver {
	return ResolverFunc(func(doc DocId, conflicts []RevisionView) *RevisionView {
		var best *RevisionView
		bestGen := -1
		for i := range conflicts {
			gen, err := conflicts[i].RevId.Generation()
			if err == nil && gen > bestGen {
				bestGen = gen
				best = &conflicts[i]
			}
		}
		return best
	})
}

// S1 - Conflict collapse to biggest generation.
func TestS1ConflictCollapsesToBiggestGeneration(t *testing.T) {
	store := NewMemoryRevisionStore()
	rev1, _, _ := store.PutRevision("doc0", "", false, map[string]any{"foo1": "bar1"}, false, nil)
	rev2a, _, _ := store.PutRevision("doc0", rev1.RevId, false, map[string]any{"foo2.a": "bar2.a"}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev2a.RevId, false, map[string]any{"foo3.a": "bar3.a"}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev1.RevId, false, map[string]any{"foo2.b": "bar2.b"}, true, nil)

	engine := NewConflictEngine(store)
	assert.Equal(t, len(engine.ConflictedDocumentIds()), 1)

	err := engine.Resolve("doc0", biggestGenerationResolver())
	assert.Equal(t, err, nil)

	assert.Equal(t, len(engine.ConflictedDocumentIds()), 0)

	winner, err := store.Get("doc0")
	assert.Equal(t, err, nil)
	gen, _ := winner.RevId.Generation()
	assert.Equal(t, gen, 3)
	assert.Equal(t, winner.Body["foo3.a"], "bar3.a")
}

// S2 - Conflict collapse to a smaller generation, still deterministic on
// the resolver's choice rather than on generation size.
func TestS2ConflictCollapsesToSmallerGenerationWhenResolverPicksIt(t *testing.T) {
	store := NewMemoryRevisionStore()
	rev1, _, _ := store.PutRevision("doc0", "", false, map[string]any{}, false, nil)
	rev2a, _, _ := store.PutRevision("doc0", rev1.RevId, false, map[string]any{}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev2a.RevId, false, map[string]any{}, false, nil)
	rev2b, _, _ := store.PutRevision("doc0", rev1.RevId, false, map[string]any{"branch": "b"}, true, nil)

	engine := NewConflictEngine(store)

	pickSmaller := ResolverFunc(func(doc DocId, conflicts []RevisionView) *RevisionView {
		for i := range conflicts {
			if conflicts[i].RevId == rev2b.RevId {
				return &conflicts[i]
			}
		}
		return nil
	})

	err := engine.Resolve("doc0", pickSmaller)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(engine.ConflictedDocumentIds()), 0)

	winner, _ := store.Get("doc0")
	assert.Equal(t, winner.RevId, rev2b.RevId)
	assert.Equal(t, winner.Body["branch"], "b")
}

// S3 - Resolver returns a revision outside the conflict set.
func TestS3InvalidResolverOutputLeavesTreeUnchanged(t *testing.T) {
	store := NewMemoryRevisionStore()
	rev1, _, _ := store.PutRevision("doc0", "", false, map[string]any{}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev1.RevId, false, map[string]any{}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev1.RevId, false, map[string]any{}, true, nil)

	engine := NewConflictEngine(store)
	before := len(engine.ConflictedDocumentIds())
	assert.Equal(t, before, 1)

	bogus := ResolverFunc(func(doc DocId, conflicts []RevisionView) *RevisionView {
		return &RevisionView{DocId: doc, RevId: "99-nonexistent"}
	})

	err := engine.Resolve("doc0", bogus)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, IsCode(err, ErrInvalidResolverOutput), true)
	assert.Equal(t, len(engine.ConflictedDocumentIds()), before)
}

// S4 - No resolution via a nil resolver result, and via a nil resolver
// against a conflicted document.
func TestS4NilResolverResultAndMissingResolver(t *testing.T) {
	store := NewMemoryRevisionStore()
	rev1, _, _ := store.PutRevision("doc0", "", false, map[string]any{}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev1.RevId, false, map[string]any{}, false, nil)
	_, _, _ = store.PutRevision("doc0", rev1.RevId, false, map[string]any{}, true, nil)

	engine := NewConflictEngine(store)

	noOpinion := ResolverFunc(func(doc DocId, conflicts []RevisionView) *RevisionView {
		return nil
	})
	err := engine.Resolve("doc0", noOpinion)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(engine.ConflictedDocumentIds()), 1)

	err = engine.Resolve("doc0", nil)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, IsCode(err, ErrResolverNotFound), true)

	// Not conflicted at all: resolver is never consulted, and nil is fine.
	store2 := NewMemoryRevisionStore()
	root, _, _ := store2.PutRevision("doc1", "", false, map[string]any{}, false, nil)
	_ = root
	engine2 := NewConflictEngine(store2)
	err = engine2.Resolve("doc1", nil)
	assert.Equal(t, err, nil)
}

// S5 - Subset resolution over 4 docs: only the requested subset collapses.
func TestS5SubsetResolutionOverFourDocs(t *testing.T) {
	store := NewMemoryRevisionStore()
	docs := []DocId{"doc0", "doc1", "doc2", "doc3"}
	for _, doc := range docs {
		rev1, _, _ := store.PutRevision(doc, "", false, map[string]any{}, false, nil)
		_, _, _ = store.PutRevision(doc, rev1.RevId, false, map[string]any{}, false, nil)
		_, _, _ = store.PutRevision(doc, rev1.RevId, false, map[string]any{}, true, nil)
	}

	engine := NewConflictEngine(store)
	conflicted := engine.ConflictedDocumentIds()
	assert.Equal(t, len(conflicted), 4)

	resolver := biggestGenerationResolver()
	assert.Equal(t, engine.Resolve("doc0", resolver), nil)
	assert.Equal(t, engine.Resolve("doc1", resolver), nil)

	remaining := map[DocId]bool{}
	for _, doc := range engine.ConflictedDocumentIds() {
		remaining[doc] = true
	}
	assert.Equal(t, len(remaining), 2)
	assert.Equal(t, remaining["doc2"], true)
	assert.Equal(t, remaining["doc3"], true)
	assert.Equal(t, remaining["doc0"], false)
	assert.Equal(t, remaining["doc1"], false)
}
