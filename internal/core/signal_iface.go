package core

import "context"

// Frame is one raw signaling message.
type Frame []byte

// SignalConnection abstracts for the meeting's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalDialer opens the signaling channel for one meeting.
// Inbound frames reach onFrame from a single goroutine in arrival order.
// onClosed fires once when the channel goes away, whoever closed it.
type SignalDialer interface {
	Dial(ctx context.Context, onFrame func(Frame), onClosed func(error)) (SignalConnection, error)
}
