package chronicle

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	l := NewKeyedLock()
	var mu sync.Mutex
	var order []int

	release := l.Lock("k")

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := l.Lock("k")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		r()
	}()

	// The second holder cannot proceed while we hold the key.
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	release()

	<-done
	if order[0] != 1 || order[1] != 2 {
		t.Errorf("unexpected order %v", order)
	}
}

func TestKeyedLockFIFO(t *testing.T) {
	l := NewKeyedLock()
	var mu sync.Mutex
	var order []int

	first := l.Lock("k")

	// Lock registers a waiter before blocking, so spacing the launches out
	// makes arrival order deterministic while the head is still held.
	const waiters = 5
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := l.Lock("k")
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		time.Sleep(10 * time.Millisecond)
	}

	first()
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("acquisition order %v is not arrival order", order)
		}
	}
}

func TestKeyedLockDistinctKeysDoNotBlock(t *testing.T) {
	l := NewKeyedLock()
	release := l.Lock("a")
	defer release()

	acquired := make(chan struct{})
	go func() {
		r := l.Lock("b")
		r()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct key blocked")
	}
}

func TestKeyedLockBusy(t *testing.T) {
	l := NewKeyedLock()
	if l.Busy("k") {
		t.Error("fresh key should be idle")
	}
	release := l.Lock("k")
	if !l.Busy("k") {
		t.Error("held key should be busy")
	}
	release()
	if l.Busy("k") {
		t.Error("released key should be idle again")
	}
}

func TestKeyedLockDo(t *testing.T) {
	l := NewKeyedLock()
	ran := false
	err := l.Do("k", func() error {
		ran = true
		if !l.Busy("k") {
			t.Error("key should be busy inside Do")
		}
		return nil
	})
	if err != nil || !ran {
		t.Errorf("Do did not run: err=%v ran=%v", err, ran)
	}
	if l.Busy("k") {
		t.Error("key should be released after Do")
	}
}
