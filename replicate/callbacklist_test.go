package replicate

import (
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCallbackListAddGetRemove(t *testing.T) {
	list := NewCallbackList[func() int]()
	id1 := list.Add(func() int { return 1 })
	id2 := list.Add(func() int { return 2 })

	got := list.Get()
	assert.Equal(t, len(got), 2)

	sum := 0
	for _, cb := range got {
		sum += cb()
	}
	assert.Equal(t, sum, 3)

	list.Remove(id1)
	assert.Equal(t, len(list.Get()), 1)
	assert.Equal(t, list.Get()[0](), 2)

	list.Remove(id2)
	assert.Equal(t, len(list.Get()), 0)
}

func TestCallbackListRemoveUnknownIdIsNoop(t *testing.T) {
	list := NewCallbackList[func()]()
	list.Add(func() {})
	list.Remove(999)
	assert.Equal(t, len(list.Get()), 1)
}

func TestCallbackListConcurrentAddIsSafe(t *testing.T) {
	list := NewCallbackList[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			list.Add(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, len(list.Get()), 50)
}
