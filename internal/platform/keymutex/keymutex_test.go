package keymutex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("record/1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	unlock := m.Lock("record/1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := m.Lock("record/2")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on unrelated key blocked")
	}
}

func TestReadersShareWritersExclude(t *testing.T) {
	m := New()

	r1 := m.RLock("user/a")
	r2 := m.RLock("user/a")

	acquired := make(chan struct{})
	go func() {
		u := m.Lock("user/a")
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired lock while readers held it")
	case <-time.After(50 * time.Millisecond):
	}

	r1()
	r2()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired lock after readers released")
	}
}

func TestEntriesAreReclaimed(t *testing.T) {
	m := New()
	for i := 0; i < 100; i++ {
		unlock := m.Lock("key")
		unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.entries)
}
