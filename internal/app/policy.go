package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	RetryFrame
	DropFrame
)

// Policy decides what happens to an outbound frame the signaling channel refused.
type Policy interface {
	OnBackPressure(env Envelope, queued int) BackpressureAction
}

// SimplePolicy keeps session descriptions and the join until they go out.
// Candidates are dropped once MaxQueued frames are waiting.
type SimplePolicy struct {
	MaxQueued int
}

func (p SimplePolicy) OnBackPressure(env Envelope, queued int) BackpressureAction {
	limit := p.MaxQueued
	if limit <= 0 {
		limit = 64
	}
	if env.Kind() == TypeICECandidate && queued > limit {
		return DropFrame
	}
	return RetryFrame
}
