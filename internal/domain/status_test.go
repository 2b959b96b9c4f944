package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleTransitionTable(t *testing.T) {
	allowed := map[[2]CycleStatus]bool{
		{CyclePlanned, CycleActive}:    true,
		{CyclePlanned, CycleAbandoned}: true,
		{CycleActive, CycleCompleted}:  true,
		{CycleActive, CycleFailed}:     true,
		{CycleActive, CycleAbandoned}:  true,
	}
	for _, from := range CycleStatuses {
		for _, to := range CycleStatuses {
			got := from.CanTransitionTo(to)
			want := allowed[[2]CycleStatus{from, to}]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestCycleTerminalStates(t *testing.T) {
	assert.False(t, CyclePlanned.Terminal())
	assert.False(t, CycleActive.Terminal())
	assert.True(t, CycleCompleted.Terminal())
	assert.True(t, CycleFailed.Terminal())
	assert.True(t, CycleAbandoned.Terminal())
	assert.False(t, CycleStatus("bogus").Terminal())
}

func TestCycleTransitionToRejectsAndLeavesStatus(t *testing.T) {
	c := CropCycle{Status: CycleCompleted}
	err := c.TransitionTo(CycleActive)
	require.Error(t, err)

	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, "crop_cycle", ite.Entity)
	assert.Equal(t, "completed", ite.From)
	assert.Equal(t, "active", ite.To)
	assert.Equal(t, CycleCompleted, c.Status, "status must not change on rejection")
}

func TestStageTransitionTable(t *testing.T) {
	allowed := map[[2]StageStatus]bool{
		{StagePending, StageInProgress}:   true,
		{StagePending, StageSkipped}:      true,
		{StageInProgress, StageCompleted}: true,
	}
	for _, from := range StageStatuses {
		for _, to := range StageStatuses {
			got := from.CanTransitionTo(to)
			want := allowed[[2]StageStatus{from, to}]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestStageDone(t *testing.T) {
	assert.False(t, StagePending.Done())
	assert.False(t, StageInProgress.Done())
	assert.True(t, StageCompleted.Done())
	assert.True(t, StageSkipped.Done())
}

func TestStageSkippedCannotResume(t *testing.T) {
	st := CropCycleStage{Status: StageSkipped}
	require.Error(t, st.TransitionTo(StageInProgress))
	require.Error(t, st.TransitionTo(StageCompleted))
	assert.Equal(t, StageSkipped, st.Status)
}

func TestCycleEditableAndDeletable(t *testing.T) {
	for _, tc := range []struct {
		status    CycleStatus
		editable  bool
		deletable bool
	}{
		{CyclePlanned, true, true},
		{CycleActive, true, false},
		{CycleCompleted, false, false},
		{CycleFailed, false, false},
		{CycleAbandoned, false, false},
	} {
		c := CropCycle{Status: tc.status}
		assert.Equal(t, tc.editable, c.Editable(), "editable %s", tc.status)
		assert.Equal(t, tc.deletable, c.Deletable(), "deletable %s", tc.status)
	}
}

func TestValidQualityRating(t *testing.T) {
	for _, q := range QualityRatings {
		assert.True(t, ValidQualityRating(q))
	}
	assert.False(t, ValidQualityRating("amazing"))
	assert.False(t, ValidQualityRating(""))
}
