package intern

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntern_SameKey_ReturnsSameID(t *testing.T) {
	in := New()

	a := in.Intern("content/index.md")
	b := in.Intern("content/index.md")

	require.Equal(t, a, b)
	require.Equal(t, 1, in.Len())
}

func TestIntern_DistinctKeys_ReturnDistinctDenseIDs(t *testing.T) {
	in := New()

	ids := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		ids[in.Intern(fmt.Sprintf("templates/page-%d.html", i))] = true
	}

	require.Len(t, ids, 100)
	for id := range ids {
		require.Less(t, uint32(id), uint32(100))
	}
}

func TestResolve_IssuedID_ReturnsOriginalKey(t *testing.T) {
	in := New()

	id := in.Intern("assets/site.css")

	require.Equal(t, "assets/site.css", in.Resolve(id))
}

func TestResolve_UnknownID_ReturnsEmpty(t *testing.T) {
	in := New()

	require.Empty(t, in.Resolve(ID(12345)))
}

func TestLookup_WithoutIntern_DoesNotIssue(t *testing.T) {
	in := New()

	_, ok := in.Lookup("never-seen")
	require.False(t, ok)
	require.Equal(t, 0, in.Len())

	id := in.Intern("seen")
	got, ok := in.Lookup("seen")
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestIntern_ConcurrentEqualKeys_ConvergeToOneID(t *testing.T) {
	in := New()

	const workers = 32
	ids := make([]ID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				ids[w] = in.Intern("content/posts/index.md")
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 1, in.Len())
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestIntern_ConcurrentDistinctKeys_AllResolvable(t *testing.T) {
	in := New()

	const workers = 16
	const perWorker = 300
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("content/%d/%d.md", w, i)
				id := in.Intern(key)
				if in.Resolve(id) != key {
					t.Errorf("resolve mismatch for %s", key)
				}
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, in.Len())
}

func TestIntern_GrowsPastOneBlock(t *testing.T) {
	in := New()

	n := blockSize*2 + 10
	for i := 0; i < n; i++ {
		in.Intern(fmt.Sprintf("key-%d", i))
	}

	require.Equal(t, n, in.Len())
	id, ok := in.Lookup(fmt.Sprintf("key-%d", blockSize+1))
	require.True(t, ok)
	require.Equal(t, fmt.Sprintf("key-%d", blockSize+1), in.Resolve(id))
}
