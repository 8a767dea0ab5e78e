package marquee

import (
	"sync"

	"go.uber.org/zap"
)

// Scheduler runs observer deliveries. Schedule must not block and must run
// tasks one at a time in submission order.
type Scheduler interface {
	Schedule(task func())
}

type queue[T any] []T

func (q *queue[T]) Len() int { return len(*q) }

func (q *queue[T]) Pop() T {
	old := *q
	x := old[0]
	*q = old[1:]
	return x
}

func (q *queue[T]) Push(t T) {
	*q = append(*q, t)
}

// SerialScheduler runs tasks one at a time in FIFO order from an unbounded
// queue.
type SerialScheduler struct {
	tasks  *queue[func()]
	busy   bool
	logger *zap.Logger

	work  chan func()
	idle  chan struct{}
	close chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewSerialScheduler starts a scheduler that logs task panics to logger.
// Call Close to stop it.
func NewSerialScheduler(logger *zap.Logger) *SerialScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SerialScheduler{
		tasks:  &queue[func()]{},
		logger: logger,
		work:   make(chan func()),
		idle:   make(chan struct{}),
		close:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule queues task. Tasks scheduled after Close are dropped.
func (s *SerialScheduler) Schedule(task func()) {
	select {
	case s.work <- task:
	case <-s.close:
	}
}

// Close waits for the running task, drops the queued ones and stops the
// scheduler. It must not be called from a task.
func (s *SerialScheduler) Close() {
	s.once.Do(func() {
		close(s.close)
		<-s.done
	})
}

func (s *SerialScheduler) run() {
	defer close(s.done)
	for {
		select {
		case task := <-s.work:
			s.tasks.Push(task)
			s.dispatch()
		case <-s.idle:
			s.busy = false
			s.dispatch()
		case <-s.close:
			if s.busy {
				<-s.idle
			}
			return
		}
	}
}

// dispatch starts the next task when none is running.
func (s *SerialScheduler) dispatch() {
	if s.busy || s.tasks.Len() == 0 {
		return
	}
	s.busy = true
	go s.exec(s.tasks.Pop())
}

func (s *SerialScheduler) exec(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("scheduled task panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
		s.idle <- struct{}{}
	}()
	task()
}
