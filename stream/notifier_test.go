package stream

import (
	"sync"
	"testing"
	"time"
)

func TestNotifierWakesOnNotify(t *testing.T) {
	var mu sync.Mutex
	n := NewNotifier(&mu)
	flag := &TerminateFlag{}

	ready := false
	woke := make(chan struct{})
	go func() {
		mu.Lock()
		n.WaitUntil(flag, func() bool { return ready })
		mu.Unlock()
		close(woke)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	ready = true
	n.NotifyAllLocked()
	mu.Unlock()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake after notify")
	}
}

func TestNotifierWakesOnCancel(t *testing.T) {
	var mu sync.Mutex
	n := NewNotifier(&mu)
	flag := &TerminateFlag{}

	woke := make(chan struct{})
	go func() {
		mu.Lock()
		n.WaitUntil(flag, func() bool { return false })
		mu.Unlock()
		close(woke)
	}()

	time.Sleep(20 * time.Millisecond)
	n.Cancel(flag)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake after cancel")
	}
	if !flag.IsSet() {
		t.Fatal("flag should be set after cancel")
	}
}
