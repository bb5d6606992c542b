package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		event   event
		want    State
		allowed bool
	}{
		{"open from closed", StateClosed, eventOpen, StateOpening, true},
		{"successful init", StateOpening, eventInitOK, StateHealthy, true},
		{"failed init", StateOpening, eventInitFailed, StateCorrupted, true},
		{"start recovery", StateCorrupted, eventRecoverStart, StateRecovering, true},
		{"recovery succeeds", StateRecovering, eventRecoverOK, StateHealthy, true},
		{"recovery fails", StateRecovering, eventRecoverFailed, StateCorrupted, true},
		{"close healthy store", StateHealthy, eventClose, StateClosed, true},
		{"close corrupted store", StateCorrupted, eventClose, StateClosed, true},
		{"cannot open twice", StateOpening, eventOpen, StateOpening, false},
		{"cannot recover healthy store", StateHealthy, eventRecoverStart, StateHealthy, false},
		{"cannot init closed store", StateClosed, eventInitOK, StateClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := transition(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.allowed, ok)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "corrupted", StateCorrupted.String())
}
