package builder

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/services"
	"github.com/rathbookie/stageflow/pkg/testutil"
)

// fakeAPI scripts server responses and records the requests it saw.
type fakeAPI struct {
	saveRequest    *services.SaveDraftRequest
	saveResponse   *models.Workflow
	saveErr        error
	publishRequest *services.PublishRequest
	publishErr     error
}

func (f *fakeAPI) Create(_ context.Context, req services.CreateRequest) (*models.Workflow, error) {
	return testutil.CreateTestWorkflow(req.Name, testutil.CreateTestStage("Not Started", 0)), nil
}

func (f *fakeAPI) SaveDraft(_ context.Context, _ string, req services.SaveDraftRequest) (*models.Workflow, error) {
	f.saveRequest = &req

	if f.saveErr != nil {
		return nil, f.saveErr
	}

	return f.saveResponse, nil
}

func (f *fakeAPI) Publish(_ context.Context, workflowID string, req services.PublishRequest) (*models.Workflow, error) {
	f.publishRequest = &req

	if f.publishErr != nil {
		return nil, f.publishErr
	}

	if f.saveResponse != nil {
		published := f.saveResponse.Clone()
		published.IsPublished = true
		published.Version++

		return published, nil
	}

	return nil, persistence.ErrWorkflowNotFound
}

func (f *fakeAPI) Delete(_ context.Context, _ string) error {
	return nil
}

func canonicalCopy(workflow *models.Workflow) *models.Workflow {
	canonical := workflow.Clone()
	canonical.Version++

	for _, stage := range canonical.Stages {
		if models.IsLocalID(stage.ID) {
			stage.ID = uuid.New().String()
		}
	}

	canonical.Transitions = nil

	return canonical
}

func TestSyncer_SaveDraft_CommitsAndRebases(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	session := sessionWith(t, workflow)
	require.NoError(t, session.SetName("Edited"))

	api := &fakeAPI{saveResponse: canonicalCopy(session.Workflow())}
	syncer := NewSyncer(api, session)

	require.NoError(t, syncer.SaveDraft(t.Context()))

	assert.Equal(t, StateCommitted, syncer.State())
	assert.False(t, session.Dirty())
	assert.Equal(t, workflow.Version+1, session.Workflow().Version)
}

func TestSyncer_SaveDraft_ConflictKeepsLocalEdits(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())
	require.NoError(t, session.SetName("My Local Edit"))

	api := &fakeAPI{saveErr: persistence.NewWorkflowError("Update", "wf", persistence.ErrVersionConflict)}
	syncer := NewSyncer(api, session)

	err := syncer.SaveDraft(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)

	assert.Equal(t, StateConflict, syncer.State())
	assert.Equal(t, "My Local Edit", session.Workflow().Name)
	assert.True(t, session.Dirty())
}

func TestSyncer_SaveDraft_StructuralRejection(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())

	api := &fakeAPI{saveErr: &persistence.StageBlockedError{
		WorkflowID: session.Workflow().ID,
		BlockedStages: []persistence.BlockedStage{
			{Name: "Review", TaskCount: 2},
		},
	}}
	syncer := NewSyncer(api, session)

	err := syncer.SaveDraft(t.Context())
	require.Error(t, err)

	assert.Equal(t, StateStructuralError, syncer.State())
	require.Len(t, syncer.BlockedStages(), 1)
	assert.Equal(t, "Review", syncer.BlockedStages()[0].Name)
	assert.Equal(t, int64(2), syncer.BlockedStages()[0].TaskCount)
}

func TestSyncer_SaveDraft_DropsUnresolvedTransitions(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	workflow.Transitions[0].ToStage = "stale-id"
	session := NewSession()
	require.NoError(t, session.Select(workflow, false))

	api := &fakeAPI{saveResponse: canonicalCopy(session.Workflow())}
	syncer := NewSyncer(api, session)

	require.NoError(t, syncer.SaveDraft(t.Context()))

	require.NotNil(t, api.saveRequest)
	assert.Len(t, api.saveRequest.Transitions, 1)
}

func TestSyncer_SaveDraft_MarksLocalStages(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())

	added, err := session.AddStage()
	require.NoError(t, err)

	api := &fakeAPI{saveResponse: canonicalCopy(session.Workflow())}
	syncer := NewSyncer(api, session)

	require.NoError(t, syncer.SaveDraft(t.Context()))

	require.NotNil(t, api.saveRequest)
	require.Len(t, api.saveRequest.Stages, 4)

	var sawLocal bool

	for _, stage := range api.saveRequest.Stages {
		require.NotNil(t, stage.ID)

		if *stage.ID == added.ID {
			sawLocal = true

			assert.True(t, models.IsLocalID(*stage.ID))
		}
	}

	assert.True(t, sawLocal)
}

func TestSyncer_Publish_SavesDirtySessionFirst(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())
	require.NoError(t, session.SetName("Dirty"))

	api := &fakeAPI{saveResponse: canonicalCopy(session.Workflow())}
	syncer := NewSyncer(api, session)

	require.NoError(t, syncer.Publish(t.Context()))

	// The save went out first, then the publish carried the post-save
	// version.
	require.NotNil(t, api.saveRequest)
	require.NotNil(t, api.publishRequest)
	assert.Equal(t, api.saveResponse.Version, api.publishRequest.Version)
	assert.Equal(t, StateCommitted, syncer.State())
	assert.True(t, session.Workflow().IsPublished)
}

func TestSyncer_Publish_CleanSessionSkipsSave(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())

	api := &fakeAPI{saveResponse: session.Workflow().Clone()}
	syncer := NewSyncer(api, session)

	require.NoError(t, syncer.Publish(t.Context()))

	assert.Nil(t, api.saveRequest)
	require.NotNil(t, api.publishRequest)
}

func TestSyncer_Publish_ConflictAfterSaveLeavesSaveApplied(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())
	require.NoError(t, session.SetName("Dirty"))

	api := &fakeAPI{
		saveResponse: canonicalCopy(session.Workflow()),
		publishErr:   persistence.NewWorkflowError("Publish", "wf", persistence.ErrVersionConflict),
	}
	syncer := NewSyncer(api, session)

	err := syncer.Publish(t.Context())
	require.Error(t, err)

	// The save committed and rebased the session; only the publish failed.
	assert.Equal(t, StateConflict, syncer.State())
	assert.False(t, session.Dirty())
	assert.False(t, session.Workflow().IsPublished)
}

func TestSyncer_CreateWorkflow(t *testing.T) {
	t.Parallel()

	session := NewSession()
	syncer := NewSyncer(&fakeAPI{}, session)

	workflow, err := syncer.CreateWorkflow(t.Context(), "Fresh", false)
	require.NoError(t, err)

	assert.Equal(t, "Fresh", workflow.Name)
	assert.Equal(t, workflow.ID, session.Workflow().ID)
	assert.Equal(t, StateCommitted, syncer.State())
	assert.False(t, session.Dirty())
}

func TestSyncer_CreateWorkflow_GuardsDirtySession(t *testing.T) {
	t.Parallel()

	session := sessionWith(t, threeStageWorkflow())
	require.NoError(t, session.SetName("Unsaved"))

	syncer := NewSyncer(&fakeAPI{}, session)

	_, err := syncer.CreateWorkflow(t.Context(), "Fresh", false)
	assert.ErrorIs(t, err, ErrSessionDirty)
	assert.Equal(t, "Unsaved", session.Workflow().Name)
}

func TestSyncer_DeleteWorkflow_ClearsSession(t *testing.T) {
	t.Parallel()

	workflow := threeStageWorkflow()
	session := sessionWith(t, workflow)
	syncer := NewSyncer(&fakeAPI{}, session)

	require.NoError(t, syncer.DeleteWorkflow(t.Context(), workflow.ID))

	assert.Equal(t, StateCommitted, syncer.State())
	assert.Nil(t, session.Workflow())
}
