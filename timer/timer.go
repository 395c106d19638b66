// Package timer schedules the countdown callbacks of a turn engine.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// DefaultResolution is how often due tasks are checked for.
const DefaultResolution = 50 * time.Millisecond

type TimerTask struct {
	ID       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x any) {
	task := x.(*TimerTask)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[:n-1]
	return task
}

// TimerManager runs callbacks at absolute instants or at fixed intervals.
// Callbacks run on their own goroutine and never under the manager's lock.
type TimerManager struct {
	queue      TimerQueue
	mutex      sync.Mutex
	nextID     int64
	resolution time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewTimerManager() *TimerManager {
	return NewTimerManagerWithClock(DefaultResolution, time.Now)
}

// NewTimerManagerWithClock checks for due tasks every resolution using now as the clock.
func NewTimerManagerWithClock(resolution time.Duration, now func() time.Time) *TimerManager {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	m := &TimerManager{
		queue:      make(TimerQueue, 0),
		nextID:     1,
		resolution: resolution,
		now:        now,
		stop:       make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.process()
	return m
}

// AddTimer runs callback after delay, then every interval if interval is positive.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	return m.schedule(m.now().Add(delay), interval, callback)
}

// At runs callback once at instant at.
func (m *TimerManager) At(at time.Time, callback func()) int64 {
	return m.schedule(at, 0, callback)
}

func (m *TimerManager) schedule(at time.Time, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		ID:       m.nextID,
		Execute:  at,
		Interval: interval,
		Callback: callback,
	}
	m.nextID++

	heap.Push(&m.queue, task)
	return task.ID
}

// RemoveTimer cancels a pending task. Unknown ids are ignored.
func (m *TimerManager) RemoveTimer(timerID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, task := range m.queue {
		if task.ID == timerID {
			heap.Remove(&m.queue, task.index)
			return
		}
	}
}

// Pending returns the number of scheduled tasks.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop ends the processing goroutine. Pending tasks never fire.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for _, callback := range m.due() {
				go callback()
			}
		}
	}
}

func (m *TimerManager) due() []func() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	var callbacks []func()
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		callbacks = append(callbacks, task.Callback)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	return callbacks
}
