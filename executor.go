package wssession

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// serialExecutor runs tasks one at a time, in posting order, on a single goroutine. It is
// the only place controller state is touched. The queue is unbounded so that Post never
// blocks a transport goroutine.
type serialExecutor struct {
	mu     sync.Mutex
	queue  []func()
	timers map[*time.Timer]struct{}
	closed bool

	// loopID is the id of the goroutine running the loop, zero before it starts.
	loopID atomic.Uint64

	signal    chan struct{}
	closeC    CloseChan
	closeOnce sync.Once
	doneC     CloseChan
}

// CloseChan is closed to broadcast that something has stopped.
type CloseChan chan struct{}

func newSerialExecutor() *serialExecutor {
	e := &serialExecutor{
		timers: make(map[*time.Timer]struct{}),
		signal: make(chan struct{}, 1),
		closeC: make(CloseChan),
		doneC:  make(CloseChan),
	}
	go e.run()
	return e
}

// Post enqueues task. It returns false once the executor is closed.
func (e *serialExecutor) Post(task func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed posts task after d. Pending timers are stopped by Close.
func (e *serialExecutor) PostDelayed(d time.Duration, task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		e.mu.Lock()
		delete(e.timers, timer)
		e.mu.Unlock()
		e.Post(task)
	})
	e.timers[timer] = struct{}{}
	return true
}

// Call posts task and waits until it has run. It returns false if the executor closed
// before the task could run. Called from inside a task, it runs task inline.
func (e *serialExecutor) Call(task func()) bool {
	if e.onLoop() {
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return false
		}
		task()
		return true
	}

	done := make(chan struct{})
	if !e.Post(func() {
		task()
		close(done)
	}) {
		return false
	}

	select {
	case <-done:
		return true
	case <-e.doneC:
		// the loop may have picked the task right before stopping
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Close stops the loop. Tasks not yet started are dropped. It only executes once.
func (e *serialExecutor) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.queue = nil
		for timer := range e.timers {
			timer.Stop()
		}
		e.timers = nil
		e.mu.Unlock()

		close(e.closeC)
	})
}

// Done is closed when the loop goroutine has exited.
func (e *serialExecutor) Done() CloseChan {
	return e.doneC
}

func (e *serialExecutor) next() func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || len(e.queue) == 0 {
		return nil
	}
	task := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return task
}

func (e *serialExecutor) run() {
	defer close(e.doneC)
	e.loopID.Store(goroutineID())

	for {
		select {
		case <-e.closeC:
			return
		case <-e.signal:
			for task := e.next(); task != nil; task = e.next() {
				task()
			}
		}
	}
}

// onLoop reports whether the caller runs on the loop goroutine.
func (e *serialExecutor) onLoop() bool {
	id := e.loopID.Load()
	return id != 0 && id == goroutineID()
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the id of the calling goroutine from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
