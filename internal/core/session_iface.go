package core

// Poster schedules a task on the single goroutine that owns meeting state.
// It returns false once the scheduler is gone; the caller then owns cleanup.
type Poster interface {
	Post(task func()) bool
}
