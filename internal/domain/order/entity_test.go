// internal/domain/order/entity_test.go
package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from PieceStatus
		to   PieceStatus
		want bool
	}{
		{"advance one stage", StatusPending, StatusCutting, true},
		{"advance mid-sequence", StatusTempering, StatusEdging, true},
		{"final stage", StatusQuality, StatusCompleted, true},
		{"skip a stage", StatusPending, StatusTempering, false},
		{"skip to completed", StatusCutting, StatusCompleted, false},
		{"move backwards", StatusEdging, StatusCutting, false},
		{"same status", StatusCutting, StatusCutting, false},

		{"hold from pending", StatusPending, StatusOnHold, true},
		{"hold from quality", StatusQuality, StatusOnHold, true},
		{"hold a completed piece", StatusCompleted, StatusOnHold, false},
		{"resume to any unfinished stage", StatusOnHold, StatusTempering, true},
		{"resume to pending", StatusOnHold, StatusPending, true},
		{"resume straight to completed", StatusOnHold, StatusCompleted, false},

		{"completed is terminal", StatusCompleted, StatusCutting, false},
		{"unknown source", PieceStatus("polishing"), StatusCutting, false},
		{"unknown target", StatusCutting, PieceStatus("polishing"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPieceStatusValid(t *testing.T) {
	for _, s := range Sequence {
		assert.True(t, s.Valid(), string(s))
	}
	assert.True(t, StatusOnHold.Valid())
	assert.False(t, PieceStatus("").Valid())
	assert.False(t, PieceStatus("shipped").Valid())
}

func TestSequenceEndpoints(t *testing.T) {
	// The sequence must start at pending and end at completed; the atomic
	// status update relies on this ordering.
	assert.Equal(t, StatusPending, Sequence[0])
	assert.Equal(t, StatusCompleted, Sequence[len(Sequence)-1])
}
