package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// testLoop lets the test goroutine play the role of the loop.
type testLoop struct {
	tasks   chan func()
	stopped atomic.Bool
}

func newTestLoop() *testLoop {
	return &testLoop{tasks: make(chan func(), 1024)}
}

func (l *testLoop) Post(task func()) bool {
	if l.stopped.Load() {
		return false
	}
	l.tasks <- task
	return true
}

// runUntil executes posted tasks until cond holds.
func (l *testLoop) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case task := <-l.tasks:
			task()
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}

// settle executes posted tasks until none arrive for a short while.
func (l *testLoop) settle() {
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-time.After(30 * time.Millisecond):
			return
		}
	}
}

func testIdentity() domain.Identity {
	return domain.Identity{MeetingID: "m1", LocalUserID: "a1", LocalUserName: "Alice"}
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func domainID(s string) domain.ParticipantID { return domain.ParticipantID(s) }
