package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/testutil"
)

func sessionWith(t *testing.T, workflow *models.Workflow) *Session {
	t.Helper()

	session := NewSession()
	require.NoError(t, session.Select(workflow, false))

	return session
}

func threeStageWorkflow() *models.Workflow {
	draft := testutil.CreateTestStage("Draft", 0)
	review := testutil.CreateTestStage("Review", 1)
	done := testutil.CreateTestStage("Done", 2, testutil.WithTerminal())

	workflow := testutil.CreateTestWorkflow("Editing", draft, review, done)
	testutil.AddTransition(workflow, draft, review, models.RoleTaskCreator)
	testutil.AddTransition(workflow, review, done, models.RoleTaskReceiver)

	return workflow
}

func TestSession_SelectGuardsDirtySwitch(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())
	require.NoError(t, session.SetName("Edited"))
	require.True(t, session.Dirty())

	other := testutil.CreateTestWorkflow("Other", testutil.CreateTestStage("Only", 0))

	err := session.Select(other, false)
	assert.ErrorIs(t, err, ErrSessionDirty)
	assert.Equal(t, "Edited", session.Workflow().Name)

	// Explicit discard confirms the switch.
	require.NoError(t, session.Select(other, true))
	assert.Equal(t, "Other", session.Workflow().Name)
	assert.False(t, session.Dirty())
}

func TestSession_AddStage(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())

	stage, err := session.AddStage()
	require.NoError(t, err)

	assert.True(t, models.IsLocalID(stage.ID))
	assert.Equal(t, 3, stage.Order)
	assert.False(t, stage.IsTerminal)
	assert.True(t, session.Dirty())
}

func TestSession_DeleteStage_CascadesAndRenumbers(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	reviewID := workflow.Stages[1].ID
	session := sessionWith(t, workflow)
	require.NoError(t, session.SelectStage(reviewID))

	require.NoError(t, session.DeleteStage(reviewID))

	edited := session.Workflow()
	assert.Nil(t, edited.StageByID(reviewID))
	assert.Empty(t, edited.Transitions)
	require.Len(t, edited.Stages, 2)
	assert.Equal(t, 0, edited.Stages[0].Order)
	assert.Equal(t, 1, edited.Stages[1].Order)

	// Selection fell back to a remaining stage.
	require.NotNil(t, session.SelectedStage())
	assert.NotEqual(t, reviewID, session.SelectedStage().ID)
}

func TestSession_DeleteStage_RefusesLastStage(t *testing.T) {
	t.Parallel()

	only := testutil.CreateTestStage("Only", 0)
	session := sessionWith(t, testutil.CreateTestWorkflow("Single", only))

	err := session.DeleteStage(only.ID)
	assert.ErrorIs(t, err, ErrLastStage)
	assert.Len(t, session.Workflow().Stages, 1)
	assert.False(t, session.Dirty())
}

func TestSession_ReorderStage(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	draftID := workflow.Stages[0].ID
	doneID := workflow.Stages[2].ID
	session := sessionWith(t, workflow)

	require.NoError(t, session.ReorderStage(draftID, doneID))

	edited := session.Workflow()
	assert.Equal(t, "Review", edited.Stages[0].Name)
	assert.Equal(t, "Done", edited.Stages[1].Name)
	assert.Equal(t, "Draft", edited.Stages[2].Name)

	for i, stage := range edited.Stages {
		assert.Equal(t, i, stage.Order)
	}
}

func TestSession_ReorderStage_SelfIsNoOp(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	draftID := workflow.Stages[0].ID
	session := sessionWith(t, workflow)

	require.NoError(t, session.ReorderStage(draftID, draftID))
	assert.False(t, session.Dirty())
}

func TestSession_AddTransition(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())

	transition, err := session.AddTransition()
	require.NoError(t, err)

	edited := session.Workflow()
	assert.Equal(t, edited.Stages[0].ID, transition.FromStage)
	assert.Equal(t, edited.Stages[1].ID, transition.ToStage)
	assert.Equal(t, "Draft", transition.FromStageName)
	assert.Equal(t, "Review", transition.ToStageName)
	assert.Equal(t, models.RoleTaskCreator, transition.AllowedRole)
}

func TestSession_AddTransition_NeedsTwoStages(t *testing.T) {
	t.Parallel()

	only := testutil.CreateTestStage("Only", 0)
	session := sessionWith(t, testutil.CreateTestWorkflow("Single", only))

	_, err := session.AddTransition()
	assert.ErrorIs(t, err, ErrNeedTwoStages)
}

func TestSession_UpdateTransition_RecomputesNames(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	transitionID := workflow.Transitions[0].ID
	doneID := workflow.Stages[2].ID
	session := sessionWith(t, workflow)

	require.NoError(t, session.UpdateTransition(transitionID, TransitionPatch{ToStage: &doneID}))

	edited := session.Workflow()
	assert.Equal(t, "Done", edited.Transitions[0].ToStageName)
}

func TestSession_UpdateStage_RenameRefreshesTransitionNames(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	reviewID := workflow.Stages[1].ID
	session := sessionWith(t, workflow)

	name := "Peer Review"
	require.NoError(t, session.UpdateStage(reviewID, StagePatch{Name: &name}))

	edited := session.Workflow()
	assert.Equal(t, "Peer Review", edited.Transitions[0].ToStageName)
	assert.Equal(t, "Peer Review", edited.Transitions[1].FromStageName)
}

func TestSession_Dirty(t *testing.T) {
	t.Parallel()

	t.Run("fresh session is clean", func(t *testing.T) {
		t.Parallel()

		session := sessionWith(t, threeStageWorkflow())
		assert.False(t, session.Dirty())
	})

	t.Run("field change flips dirty", func(t *testing.T) {
		t.Parallel()

		workflow := threeStageWorkflow()
		session := sessionWith(t, workflow)

		terminal := true
		require.NoError(t, session.UpdateStage(session.Workflow().Stages[1].ID, StagePatch{IsTerminal: &terminal}))
		assert.True(t, session.Dirty())
	})

	t.Run("reordering identical transitions stays clean", func(t *testing.T) {
		t.Parallel()

		session := sessionWith(t, threeStageWorkflow())

		edited := session.Workflow()
		edited.Transitions[0], edited.Transitions[1] = edited.Transitions[1], edited.Transitions[0]

		assert.False(t, session.Dirty())
	})

	t.Run("rebase resets the baseline", func(t *testing.T) {
		t.Parallel()

		session := sessionWith(t, threeStageWorkflow())
		require.NoError(t, session.SetName("Renamed"))
		require.True(t, session.Dirty())

		session.Rebase()
		assert.False(t, session.Dirty())
	})
}
