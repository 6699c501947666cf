package resolution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/resolution"
	"github.com/rathbookie/stageflow/pkg/testutil"
)

func reviewWorkflow() (*models.Workflow, *models.Stage, *models.Stage, *models.Stage) {
	draft := testutil.CreateTestStage("Draft", 0)
	review := testutil.CreateTestStage("Review", 1)
	done := testutil.CreateTestStage("Done", 2, testutil.WithTerminal())

	workflow := testutil.CreateTestWorkflow("Review Flow", draft, review, done)
	testutil.AddTransition(workflow, draft, review, models.RoleTaskCreator)

	return workflow, draft, review, done
}

func TestResolve_RoleFiltering(t *testing.T) {
	t.Parallel()

	workflow, draft, review, _ := reviewWorkflow()
	task := testutil.CreateTestTask(workflow, draft)

	options := resolution.Resolve(workflow, task, models.RoleTaskCreator)
	require.Len(t, options, 1)
	assert.Equal(t, review.ID, options[0].ToStage)
	assert.Equal(t, "Review", options[0].ToStageName)
	assert.Equal(t, models.RoleTaskCreator, options[0].AllowedRole)

	// The same task seen by the other role has nothing to do.
	assert.Empty(t, resolution.Resolve(workflow, task, models.RoleTaskReceiver))
}

func TestResolve_TerminalStageOverridesTable(t *testing.T) {
	t.Parallel()

	workflow, _, _, done := reviewWorkflow()

	// Even with an outgoing edge in the table, a terminal stage resolves to
	// nothing.
	testutil.AddTransition(workflow, done, workflow.Stages[0], models.RoleTaskCreator)

	task := testutil.CreateTestTask(workflow, done)
	assert.Empty(t, resolution.Resolve(workflow, task, models.RoleTaskCreator))
}

func TestResolve_FailsClosed(t *testing.T) {
	t.Parallel()

	workflow, draft, _, _ := reviewWorkflow()
	task := testutil.CreateTestTask(workflow, draft)

	assert.Empty(t, resolution.Resolve(nil, task, models.RoleTaskCreator))
	assert.Empty(t, resolution.Resolve(workflow, nil, models.RoleTaskCreator))
	assert.Empty(t, resolution.Resolve(workflow, task, "SUPERVISOR"))

	orphan := testutil.CreateTestTask(workflow, nil, testutil.WithLegacyStatus("SOMETHING_ELSE"))
	assert.Empty(t, resolution.Resolve(workflow, orphan, models.RoleTaskCreator))
}

func TestResolve_LegacyStatusTask(t *testing.T) {
	t.Parallel()

	notStarted := testutil.CreateTestStage("Not Started", 0)
	inProgress := testutil.CreateTestStage("In Progress", 1)
	workflow := testutil.CreateTestWorkflow("Legacy", notStarted, inProgress)
	testutil.AddTransition(workflow, notStarted, inProgress, models.RoleTaskReceiver)

	task := testutil.CreateTestTask(workflow, nil, testutil.WithLegacyStatus(models.StatusNotStarted))

	options := resolution.Resolve(workflow, task, models.RoleTaskReceiver)
	require.Len(t, options, 1)
	assert.Equal(t, inProgress.ID, options[0].ToStage)
	assert.Equal(t, models.StatusInProgress, options[0].ToStatus)
}

func TestResolve_UnmappedDestinationHasNoStatus(t *testing.T) {
	t.Parallel()

	draft := testutil.CreateTestStage("Draft", 0)
	legal := testutil.CreateTestStage("Legal Approval", 1)
	workflow := testutil.CreateTestWorkflow("Custom", draft, legal)
	testutil.AddTransition(workflow, draft, legal, models.RoleAdmin)

	task := testutil.CreateTestTask(workflow, draft)

	options := resolution.Resolve(workflow, task, models.RoleAdmin)
	require.Len(t, options, 1)
	assert.Empty(t, options[0].ToStatus)
}

func TestAllows(t *testing.T) {
	t.Parallel()

	workflow, draft, review, done := reviewWorkflow()
	task := testutil.CreateTestTask(workflow, draft)

	assert.True(t, resolution.Allows(workflow, task, models.RoleTaskCreator, review.ID))
	assert.False(t, resolution.Allows(workflow, task, models.RoleTaskReceiver, review.ID))
	assert.False(t, resolution.Allows(workflow, task, models.RoleTaskCreator, done.ID))
}

func TestResolve_DoesNotMutate(t *testing.T) {
	t.Parallel()

	workflow, draft, _, _ := reviewWorkflow()
	task := testutil.CreateTestTask(workflow, draft)

	stageCount := len(workflow.Stages)
	transitionCount := len(workflow.Transitions)
	version := task.Version

	_ = resolution.Resolve(workflow, task, models.RoleTaskCreator)

	assert.Len(t, workflow.Stages, stageCount)
	assert.Len(t, workflow.Transitions, transitionCount)
	assert.Equal(t, version, task.Version)
}
