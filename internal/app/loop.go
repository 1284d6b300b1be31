package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Loop is the single goroutine that owns roster, session and media state.
// Tasks run one at a time in the order they were posted.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	running atomic.Bool
}

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues task without blocking. It returns false once the loop stopped.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes tasks until Stop is called or ctx is done. Tasks queued before
// that point still run, so their continuations can release what they hold.
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	defer l.once.Do(func() { close(l.done) })

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, task := range batch {
			l.exec(task)
		}
		if len(batch) > 0 {
			continue
		}
		if stopped {
			return
		}

		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.wake:
		}
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.loop").Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()
	task()
}

// Stop refuses new tasks. Run returns once the queue is empty.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Call runs task on the loop and waits for it. It must not be called from a loop task.
func (l *Loop) Call(task func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}

// Exec runs task on the loop, or inline once the loop is gone.
// task runs exactly once either way. Like Call, never from a loop task.
func (l *Loop) Exec(task func()) {
	var once sync.Once
	run := func() { once.Do(task) }

	if l.running.Load() {
		finished := make(chan struct{})
		if l.Post(func() {
			defer close(finished)
			run()
		}) {
			select {
			case <-finished:
				return
			case <-l.done:
			}
		} else {
			<-l.done
		}
	}
	run()
}
