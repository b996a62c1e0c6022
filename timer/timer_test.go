package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_FiresAfterDelay(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(fc)
	defer s.Stop()

	var fired int32
	s.After(500*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	fc.BlockUntil(1)
	fc.Advance(499 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("task fired early")
	}

	fc.Advance(time.Millisecond)
	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
}

func TestScheduler_FiresInOrder(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(fc)
	defer s.Stop()

	var order []int
	done := make(chan struct{})
	s.After(200*time.Millisecond, func() { order = append(order, 2); close(done) })
	s.After(100*time.Millisecond, func() { order = append(order, 1) })

	fc.BlockUntil(1)
	fc.Advance(250 * time.Millisecond)
	<-done

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("Expected [1 2], got %v", order)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(fc)
	defer s.Stop()

	var fired int32
	id := s.After(100*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.Cancel(id)

	fc.BlockUntil(1)
	fc.Advance(time.Second)

	// Give the loop a chance to misbehave.
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("canceled task fired")
	}
}

func TestScheduler_StopDropsPendingTasks(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(fc)

	var fired int32
	s.After(100*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.Stop()

	fc.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("task fired after Stop")
	}

	if id := s.After(time.Millisecond, func() {}); id != 0 {
		t.Errorf("After on a stopped scheduler should return 0, got %d", id)
	}
}
