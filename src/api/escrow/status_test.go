package escrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusFunded, true},
		{StatusFunded, StatusBothSigned, true},
		{StatusFunded, StatusRefunded, true},
		{StatusBothSigned, StatusWorkSubmitted, true},
		{StatusWorkSubmitted, StatusCompleted, true},
		{StatusWorkSubmitted, StatusBothSigned, true},
		{StatusWorkSubmitted, StatusDisputed, true},
		{StatusBothSigned, StatusDisputed, true},
		{StatusDisputed, StatusResolved, true},
		{StatusDisputed, StatusRefunded, true},

		// approve before work was submitted
		{StatusBothSigned, StatusCompleted, false},
		{StatusFunded, StatusCompleted, false},
		{StatusCreated, StatusBothSigned, false},
		{StatusCompleted, StatusDisputed, false},
		{StatusResolved, StatusResolved, false},
		{StatusRefunded, StatusFunded, false},
		{Status("bogus"), StatusFunded, false},
	}
	for _, tt := range tests {
		err := Transition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			continue
		}
		var terr *TransitionError
		require.True(t, errors.As(err, &terr), "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.from, terr.From)
		assert.Equal(t, tt.to, terr.To)
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusResolved, StatusRefunded} {
		assert.True(t, s.Terminal())
		assert.Empty(t, s.Next())
	}
	assert.False(t, StatusDisputed.Terminal())
}

func TestDecodeOnChainUsesOneTable(t *testing.T) {
	want := []Status{
		StatusCreated, StatusFunded, StatusBothSigned, StatusWorkSubmitted,
		StatusCompleted, StatusDisputed, StatusRefunded,
	}
	for i, s := range want {
		got, err := DecodeOnChain(uint8(i))
		require.NoError(t, err)
		assert.Equal(t, s, got)

		back, err := EncodeOnChain(got)
		require.NoError(t, err)
		assert.Equal(t, uint8(i), back)
	}

	got, err := DecodeOnChain(6)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got)

	_, err = DecodeOnChain(7)
	assert.Error(t, err)

	enc, err := EncodeOnChain(StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), enc)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name          string
		mirror, chain Status
		resolution    bool
		want          Status
		outcome       Outcome
	}{
		{"equal", StatusFunded, StatusFunded, false, StatusFunded, InSync},
		{"chain ahead", StatusCreated, StatusBothSigned, false, StatusBothSigned, Advanced},
		{"confirmation lag", StatusWorkSubmitted, StatusBothSigned, false, StatusWorkSubmitted, Lagging},
		{"refund lag", StatusRefunded, StatusFunded, false, StatusRefunded, Lagging},
		{"resolution confirmed", StatusDisputed, StatusCompleted, true, StatusResolved, Advanced},
		{"resolved in sync", StatusResolved, StatusCompleted, true, StatusResolved, InSync},
		{"resolution lag", StatusResolved, StatusDisputed, true, StatusResolved, Lagging},
		{"diverged", StatusCompleted, StatusDisputed, false, StatusDisputed, Diverged},
		{"completed without resolution", StatusDisputed, StatusCompleted, false, StatusCompleted, Diverged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome := Reconcile(tt.mirror, tt.chain, tt.resolution)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.outcome, outcome, outcome.String())
		})
	}
}

func TestReconcileWorkKeepsRejection(t *testing.T) {
	tests := []struct {
		name      string
		rejected  string
		chainWork string
		want      Status
		outcome   Outcome
	}{
		{"chain still holds the rejected delivery", "bafy-1", "bafy-1", StatusBothSigned, InSync},
		{"chain reports no hash", "bafy-1", "", StatusBothSigned, InSync},
		{"freelancer delivered again", "bafy-1", "bafy-2", StatusWorkSubmitted, Advanced},
		{"nothing was rejected", "", "bafy-1", StatusWorkSubmitted, Advanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome := ReconcileWork(StatusBothSigned, StatusWorkSubmitted, false, tt.rejected, tt.chainWork)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.outcome, outcome)
		})
	}

	// other pairs fall through to Reconcile
	got, outcome := ReconcileWork(StatusBothSigned, StatusCompleted, false, "bafy-1", "bafy-1")
	assert.Equal(t, StatusCompleted, got)
	assert.Equal(t, Advanced, outcome)
}
