package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_LegalEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from   Status
		action Action
		to     Status
	}{
		{StatusPending, ActionAssign, StatusAssigned},
		{StatusAssigned, ActionAccept, StatusInProgress},
		{StatusAssigned, ActionReject, StatusPending},
		{StatusInProgress, ActionReject, StatusPending},
		{StatusInProgress, ActionFinish, StatusCompleted},
		{StatusInProgress, ActionReturnForRevision, StatusAssigned},
		{StatusPending, ActionExpire, StatusExpired},
		{StatusAssigned, ActionExpire, StatusExpired},
		{StatusInProgress, ActionExpire, StatusExpired},
	}

	for _, tt := range tests {
		got, err := Next(tt.from, tt.action)
		require.NoError(t, err, "%s from %s", tt.action, tt.from)
		assert.Equal(t, tt.to, got, "%s from %s", tt.action, tt.from)
	}
}

func TestNext_FromAssigned_OnlyAcceptAndRejectByUsers(t *testing.T) {
	t.Parallel()

	for _, a := range []Action{ActionAssign, ActionFinish, ActionReturnForRevision} {
		got, err := Next(StatusAssigned, a)
		require.ErrorIs(t, err, ErrInvalidTransition, "action %s", a)
		assert.Equal(t, StatusAssigned, got, "status must be unchanged")
	}
}

func TestNext_TerminalStatesHaveNoEdges(t *testing.T) {
	t.Parallel()

	all := []Action{ActionAssign, ActionAccept, ActionReject, ActionFinish, ActionReturnForRevision, ActionExpire}
	for _, from := range []Status{StatusCompleted, StatusExpired} {
		assert.True(t, from.IsTerminal())
		assert.Empty(t, Allowed(from))
		for _, a := range all {
			_, err := Next(from, a)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", a, from)
		}
	}
}

func TestAllowed_ListsTableOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Action{ActionAccept, ActionReject, ActionExpire}, Allowed(StatusAssigned))
	assert.Equal(t, []Action{ActionReject, ActionFinish, ActionReturnForRevision, ActionExpire}, Allowed(StatusInProgress))
}

func TestStatus_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusInProgress.Valid())
	assert.False(t, Status("archived").Valid())
}

func TestTask_Overdue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	open := &Task{Status: StatusAssigned, Deadline: now.Add(-time.Minute)}
	done := &Task{Status: StatusCompleted, Deadline: now.Add(-time.Minute)}
	noDeadline := &Task{Status: StatusAssigned}

	assert.True(t, open.Overdue(now))
	assert.False(t, done.Overdue(now))
	assert.False(t, noDeadline.Overdue(now))
}

func TestTask_HasRole_SelfAssignedCreatorHoldsBoth(t *testing.T) {
	t.Parallel()

	tk := &Task{CreatorID: 1, AssigneeID: 1}
	assert.True(t, tk.hasRole(1, RoleCreator))
	assert.True(t, tk.hasRole(1, RoleAssignee))
	assert.False(t, tk.hasRole(0, RoleCreator))
}
