package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestContactLocker_SerializesSameContact(t *testing.T) {
	l := NewContactLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("same")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if l.held() != 0 {
		t.Errorf("locks not cleaned up: %d remaining", l.held())
	}
}

func TestContactLocker_IndependentContacts(t *testing.T) {
	l := NewContactLocker()
	unlockA := l.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock for contact b blocked on contact a")
	}
}
