package illness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"symptom-tracker/internal/infermedica"
)

func newTestService(repo *memRepo, client *fakeDiagClient) Service {
	pipeline := NewPipeline(repo, client, 4, zap.NewNop())
	return NewService(repo, pipeline, staticProfiles{profile: testProfile()}, zap.NewNop())
}

func TestAddSymptomsCreatesActiveEpisode(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	svc := newTestService(repo, client)
	userID := uuid.New()

	result, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)
	assert.True(t, result.CreatedEpisode)
	assert.NoError(t, result.DiagnosisErr)

	require.Equal(t, 1, repo.activeCount(userID))
	require.Len(t, result.Episode.Symptoms, 1)
	assert.Equal(t, "Sore throat", result.Episode.Symptoms[0].Title)
	assert.Equal(t, "s_98", result.Episode.Symptoms[0].Data.ID)

	// Submitting again reuses the same episode.
	again, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_21", CommonName: "Headache"},
	})
	require.NoError(t, err)
	assert.False(t, again.CreatedEpisode)
	assert.Equal(t, result.Episode.ID, again.Episode.ID)
	assert.Equal(t, 1, repo.activeCount(userID))
}

func TestAddSymptomsValidation(t *testing.T) {
	svc := newTestService(newMemRepo(), newFakeDiagClient())
	userID := uuid.New()

	_, err := svc.AddSymptoms(context.Background(), userID, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddSymptoms(context.Background(), userID, []SymptomData{{CommonName: "no external id"}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddSymptomsDiagnosisFailureIsDecoupled(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	client.diagnoseErr = errors.New("503 service unavailable")
	svc := newTestService(repo, client)
	userID := uuid.New()

	result, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	// The mutation itself succeeds; only the diagnosis outcome fails.
	require.NoError(t, err)
	require.Error(t, result.DiagnosisErr)
	assert.ErrorIs(t, result.DiagnosisErr, ErrDiagnosisUnavailable)

	require.Len(t, result.Episode.Symptoms, 1)
	diagnoses, derr := repo.DiagnosesByEpisode(context.Background(), result.Episode.ID)
	require.NoError(t, derr)
	assert.Empty(t, diagnoses)
}

func TestRemoveSymptomTriggersRediagnosis(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	svc := newTestService(repo, client)
	userID := uuid.New()

	added, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, client.diagnoseCount())

	result, err := svc.RemoveSymptom(context.Background(), userID, added.Episode.Symptoms[0].ID)
	require.NoError(t, err)
	assert.NoError(t, result.DiagnosisErr)
	assert.Empty(t, result.Episode.Symptoms)

	// Deleting the last symptom still ran the pipeline, on empty evidence.
	require.Equal(t, 2, client.diagnoseCount())
	assert.Empty(t, client.diagnoseCalls[1].Evidence)
}

func TestRemoveSymptomNotOwned(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	svc := newTestService(repo, client)
	owner := uuid.New()
	intruder := uuid.New()

	added, err := svc.AddSymptoms(context.Background(), owner, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)

	_, err = svc.RemoveSymptom(context.Background(), intruder, added.Episode.Symptoms[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The symptom is untouched and no extra pipeline run happened.
	episode, err := svc.Get(context.Background(), owner, added.Episode.ID)
	require.NoError(t, err)
	assert.Len(t, episode.Symptoms, 1)
	assert.Equal(t, 1, client.diagnoseCount())
}

func TestCloseReportsDistinctNoOp(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newFakeDiagClient())
	userID := uuid.New()

	closed, err := svc.Close(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, closed)

	_, err = svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)

	closed, err = svc.Close(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 0, repo.activeCount(userID))

	// Closing again is the no-op outcome, not an error.
	closed, err = svc.Close(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestReopenActiveEpisodeIsConflict(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newFakeDiagClient())
	userID := uuid.New()

	result, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)

	before, err := svc.Get(context.Background(), userID, result.Episode.ID)
	require.NoError(t, err)

	err = svc.Reopen(context.Background(), userID, result.Episode.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// Conflict must not mutate anything.
	after, err := svc.Get(context.Background(), userID, result.Episode.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedOn, after.UpdatedOn)
	assert.True(t, after.Active)
}

func TestReopenSwitchesActiveEpisode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newFakeDiagClient())
	userID := uuid.New()

	first, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), userID)
	require.NoError(t, err)

	second, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_21", CommonName: "Headache"},
	})
	require.NoError(t, err)
	require.NotEqual(t, first.Episode.ID, second.Episode.ID)

	require.NoError(t, svc.Reopen(context.Background(), userID, first.Episode.ID))

	assert.Equal(t, 1, repo.activeCount(userID))
	active, err := svc.GetActive(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, first.Episode.ID, active.ID)

	err = svc.Reopen(context.Background(), userID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSingleActiveInvariantUnderConcurrency(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newFakeDiagClient())
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddSymptoms(context.Background(), userID, []SymptomData{
				{ID: "s_98", CommonName: "Sore throat"},
			})
			_, _ = svc.Close(context.Background(), userID)
			_, _ = svc.AddSymptoms(context.Background(), userID, []SymptomData{
				{ID: "s_21", CommonName: "Headache"},
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, repo.activeCount(userID), 1)
}

func TestEditUpdatesTitleAndDatesWithoutRediagnosis(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	svc := newTestService(repo, client)
	userID := uuid.New()

	result, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)
	runsBefore := client.diagnoseCount()

	start := time.Date(2024, time.January, 2, 10, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.January, 9, 10, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Edit(context.Background(), userID, result.Episode.ID, "Winter flu", &start, &end))

	episode, err := svc.Get(context.Background(), userID, result.Episode.ID)
	require.NoError(t, err)
	assert.Equal(t, "Winter flu", episode.Title)
	assert.Equal(t, start, episode.CreatedOn)
	assert.Equal(t, end, episode.UpdatedOn)
	assert.Equal(t, runsBefore, client.diagnoseCount())

	err = svc.Edit(context.Background(), userID, result.Episode.ID, "", nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEditSymptomDateDoesNotRediagnose(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	svc := newTestService(repo, client)
	userID := uuid.New()

	result, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
		{ID: "s_98", CommonName: "Sore throat"},
	})
	require.NoError(t, err)
	runsBefore := client.diagnoseCount()

	newDate := time.Date(2024, time.February, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, svc.EditSymptomDate(context.Background(), userID, result.Episode.Symptoms[0].ID, newDate))

	episode, err := svc.Get(context.Background(), userID, result.Episode.ID)
	require.NoError(t, err)
	assert.Equal(t, newDate, episode.Symptoms[0].CreatedOn)
	assert.Equal(t, runsBefore, client.diagnoseCount())
}

func TestHistoryReturnsClosedEpisodesNewestFirst(t *testing.T) {
	repo := newMemRepo()
	client := newFakeDiagClient()
	client.conditions = []infermedica.Condition{{ID: "c_1"}}
	svc := newTestService(repo, client)
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		result, err := svc.AddSymptoms(context.Background(), userID, []SymptomData{
			{ID: "s_98", CommonName: "Sore throat"},
		})
		require.NoError(t, err)
		ids = append(ids, result.Episode.ID)
		_, err = svc.Close(context.Background(), userID)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	history, err := svc.History(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[0], history[2].ID)
	for _, e := range history {
		assert.False(t, e.Active)
	}
}
