// Package timer provides the delayed-task scheduler behind every suspension
// point of a session: snapshot delays, the deciding→playing grace period, the
// auto-roll delay and the derby tick rescheduling. Tasks are one-shot and are
// cancellable; stopping the scheduler guarantees that nothing scheduled before
// teardown can still fire afterwards.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type task struct {
	id       int64
	execute  time.Time
	callback func()
	index    int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].execute.Before(q[j].execute)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	n := len(*q)
	t := x.(*task)
	t.index = n
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	t.index = -1
	*q = old[0 : n-1]
	return t
}

// idleWait bounds the sleep when no task is queued.
const idleWait = time.Hour

type Scheduler struct {
	clock   clockwork.Clock
	queue   taskQueue
	mutex   sync.Mutex
	nextID  int64
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewScheduler starts the dispatch loop. Pass clockwork.NewRealClock for
// production and a fake clock in tests.
func NewScheduler(clock clockwork.Clock) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		queue:  make(taskQueue, 0),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		nextID: 1,
	}
	heap.Init(&s.queue)
	go s.process()
	return s
}

// After schedules callback to run once after delay. Returns a task id usable
// with Cancel, or 0 if the scheduler is already stopped.
func (s *Scheduler) After(delay time.Duration, callback func()) int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return 0
	}

	t := &task{
		id:       s.nextID,
		execute:  s.clock.Now().Add(delay),
		callback: callback,
	}
	s.nextID++

	heap.Push(&s.queue, t)
	s.signal()
	return t.id
}

// Cancel removes a pending task. Canceling an unknown id is a no-op.
func (s *Scheduler) Cancel(id int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, t := range s.queue {
		if t.id == id {
			heap.Remove(&s.queue, i)
			break
		}
	}
}

// Stop discards all pending tasks and shuts the dispatch loop down. A task
// that was due but not yet fired will not fire after Stop returns.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}
	s.stopped = true
	s.queue = s.queue[:0]
	close(s.done)
	s.mutex.Unlock()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) process() {
	for {
		s.mutex.Lock()
		now := s.clock.Now()

		var due []*task
		for s.queue.Len() > 0 && !s.queue[0].execute.After(now) {
			due = append(due, heap.Pop(&s.queue).(*task))
		}

		wait := idleWait
		if s.queue.Len() > 0 {
			wait = s.queue[0].execute.Sub(now)
		}
		s.mutex.Unlock()

		for _, t := range due {
			// Re-check liveness at fire time: Stop may have raced the pop.
			s.mutex.Lock()
			stopped := s.stopped
			s.mutex.Unlock()
			if stopped {
				return
			}
			t.callback()
		}

		timer := s.clock.NewTimer(wait)
		select {
		case <-timer.Chan():
		case <-s.wake:
			timer.Stop()
		case <-s.done:
			timer.Stop()
			return
		}
	}
}
