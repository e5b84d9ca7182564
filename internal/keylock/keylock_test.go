package keylock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/xraph/subpay/internal/keylock"
)

func TestSameKeySerializes(t *testing.T) {
	var m keylock.Map[int]

	unlock := m.Lock(1)
	acquired := make(chan struct{})
	go func() {
		release := m.Lock(1)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the key")
	}
}

func TestDistinctKeysIndependent(t *testing.T) {
	var m keylock.Map[int]

	unlock := m.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		m.Lock(2)()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("distinct key blocked")
	}
}

func TestEntriesDropped(t *testing.T) {
	var m keylock.Map[string]

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("k")()
		}()
	}
	wg.Wait()

	if n := m.Len(); n != 0 {
		t.Errorf("expected no entries after release, got %d", n)
	}
}
