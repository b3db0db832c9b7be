package adapters

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comlinepm/internal/types"
)

func TestSessionMemoryAdapterLifecycle(t *testing.T) {
	store := NewSessionMemoryAdapter()

	_, ok := store.Get("central")
	assert.False(t, ok)

	session := types.Session{Registry: "central", Method: "github", Token: "t", ExpiresAt: time.Unix(100, 0)}
	store.Put(session)
	got, ok := store.Get("central")
	require.True(t, ok)
	assert.Equal(t, session, got)

	store.Put(types.Session{Registry: "central", Method: "ssh", Token: "u"})
	got, _ = store.Get("central")
	assert.Equal(t, "ssh", got.Method)

	assert.True(t, store.Delete("central"))
	assert.False(t, store.Delete("central"))
	_, ok = store.Get("central")
	assert.False(t, ok)
}

func TestSessionMemoryAdapterConcurrentAccess(t *testing.T) {
	store := NewSessionMemoryAdapter()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("r%d", i%4)
			store.Put(types.Session{Registry: name, Token: "t"})
			_, _ = store.Get(name)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 4; i++ {
		_, ok := store.Get(fmt.Sprintf("r%d", i))
		assert.True(t, ok)
	}
}
