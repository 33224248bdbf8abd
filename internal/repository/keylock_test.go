package repository

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLockMutualExclusion(t *testing.T) {
	kl := NewKeyLock(4, time.Hour)
	defer kl.Close()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("u-1", "org-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := NewKeyLock(4, time.Hour)
	defer kl.Close()

	unlockA := kl.Lock("u-1", "org-1")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := kl.Lock("u-2", "org-1")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a different key must not block")
	}
}

func TestKeyLockSameUserDifferentOrg(t *testing.T) {
	kl := NewKeyLock(4, time.Hour)
	defer kl.Close()

	unlockA := kl.Lock("u-1", "org-1")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := kl.Lock("u-1", "org-2")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("(user, org) pairs are independent keys")
	}
}

func TestKeyLockReuseAfterUnlock(t *testing.T) {
	kl := NewKeyLock(1, time.Hour)
	defer kl.Close()

	for i := 0; i < 100; i++ {
		unlock := kl.Lock("u-1", "org-1")
		unlock()
	}
}
