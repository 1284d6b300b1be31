package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiationTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []NegotiationState
		ok   bool
	}{
		{"initiator", []NegotiationState{StateOfferSent, StateStable}, true},
		{"responder", []NegotiationState{StateOfferReceived, StateAnswerSent, StateStable}, true},
		{"stable re-enters itself", []NegotiationState{StateOfferSent, StateStable, StateStable}, true},
		{"close from new", []NegotiationState{StateClosed}, true},
		{"close mid responder", []NegotiationState{StateOfferReceived, StateClosed}, true},
		{"answer before offer", []NegotiationState{StateAnswerSent}, false},
		{"initiator skips to stable", []NegotiationState{StateStable}, false},
		{"cross roles", []NegotiationState{StateOfferSent, StateAnswerSent}, false},
		{"nothing after close", []NegotiationState{StateClosed, StateOfferSent}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPeerSession("b1", Initiator)
			var err error
			for _, to := range tt.path {
				if err = s.transition(to); err != nil {
					break
				}
			}
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], s.State())
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestClosedSessionRejectsTransitions(t *testing.T) {
	s := newPeerSession("b1", Responder)
	require.NoError(t, s.transition(StateClosed))
	assert.ErrorIs(t, s.transition(StateClosed), ErrSessionClosed)
	assert.True(t, s.Closed())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "offer-sent", StateOfferSent.String())
	assert.Equal(t, "responder", Responder.String())
	b, err := StateAnswerSent.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "answer-sent", string(b))
}
