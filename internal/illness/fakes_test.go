package illness

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"symptom-tracker/internal/infermedica"
)

// memRepo is an in-memory Repository with the same observable behavior
// as the postgres implementation, including the single-active invariant.
type memRepo struct {
	mu        sync.Mutex
	episodes  map[uuid.UUID]*Episode
	symptoms  map[uuid.UUID]*Symptom
	diagnoses []*Diagnosis
}

func newMemRepo() *memRepo {
	return &memRepo{
		episodes: map[uuid.UUID]*Episode{},
		symptoms: map[uuid.UUID]*Symptom{},
	}
}

func (r *memRepo) activeLocked(userID uuid.UUID) *Episode {
	for _, e := range r.episodes {
		if e.UserID == userID && e.Active {
			return e
		}
	}
	return nil
}

func (r *memRepo) symptomsLocked(userID, episodeID uuid.UUID) []Symptom {
	out := []Symptom{}
	for _, s := range r.symptoms {
		if s.UserID == userID && s.IllnessID == episodeID {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.After(out[j].CreatedOn)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *memRepo) attachLocked(e *Episode) *Episode {
	clone := *e
	clone.Symptoms = r.symptomsLocked(e.UserID, e.ID)
	clone.Diagnoses = []Diagnosis{}
	var latest *Diagnosis
	for _, d := range r.diagnoses {
		if d.IllnessID == e.ID {
			if latest == nil || d.CreatedOn.After(latest.CreatedOn) {
				latest = d
			}
		}
	}
	if latest != nil {
		clone.Diagnoses = []Diagnosis{*latest}
	}
	return &clone
}

func (r *memRepo) GetActive(_ context.Context, userID uuid.UUID) (*Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.activeLocked(userID)
	if e == nil {
		return nil, ErrNotFound
	}
	return r.attachLocked(e), nil
}

func (r *memRepo) GetByID(_ context.Context, userID, episodeID uuid.UUID) (*Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.episodes[episodeID]
	if !ok || e.UserID != userID {
		return nil, ErrNotFound
	}
	return r.attachLocked(e), nil
}

func (r *memRepo) CreateIfAbsent(_ context.Context, userID uuid.UUID) (*Episode, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.activeLocked(userID); e != nil {
		return r.attachLocked(e), false, nil
	}
	now := time.Now().UTC()
	e := &Episode{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     DefaultTitle,
		Active:    true,
		CreatedOn: now,
		UpdatedOn: now,
	}
	r.episodes[e.ID] = e
	return r.attachLocked(e), true, nil
}

func (r *memRepo) CloseActive(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.activeLocked(userID)
	if e == nil {
		return false, nil
	}
	e.Active = false
	e.UpdatedOn = time.Now().UTC()
	return true, nil
}

func (r *memRepo) Reopen(_ context.Context, userID, episodeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.episodes[episodeID]
	if !ok || target.UserID != userID {
		return ErrNotFound
	}
	if target.Active {
		return ErrConflict
	}
	if current := r.activeLocked(userID); current != nil {
		current.Active = false
		current.UpdatedOn = time.Now().UTC()
	}
	target.Active = true
	target.UpdatedOn = time.Now().UTC()
	return nil
}

func (r *memRepo) UpdateEpisode(_ context.Context, e *Episode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.episodes[e.ID]
	if !ok || stored.UserID != e.UserID {
		return ErrNotFound
	}
	stored.Title = e.Title
	stored.CreatedOn = e.CreatedOn
	stored.UpdatedOn = e.UpdatedOn
	return nil
}

func (r *memRepo) TouchEpisode(_ context.Context, episodeID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.episodes[episodeID]; ok {
		e.UpdatedOn = at
	}
	return nil
}

func (r *memRepo) History(_ context.Context, userID uuid.UUID, limit int) ([]Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Episode{}
	for _, e := range r.episodes {
		if e.UserID == userID && !e.Active {
			out = append(out, *r.attachLocked(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedOn.After(out[j].CreatedOn)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) InsertSymptom(_ context.Context, s *Symptom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.symptoms[s.ID] = &clone
	return nil
}

func (r *memRepo) DeleteSymptom(_ context.Context, userID, symptomID uuid.UUID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.symptoms[symptomID]
	if !ok || s.UserID != userID {
		return uuid.Nil, ErrNotFound
	}
	delete(r.symptoms, symptomID)
	return s.IllnessID, nil
}

func (r *memRepo) UpdateSymptomDate(_ context.Context, userID, symptomID uuid.UUID, createdOn, at time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.symptoms[symptomID]
	if !ok || s.UserID != userID {
		return uuid.Nil, ErrNotFound
	}
	s.CreatedOn = createdOn
	s.UpdatedOn = at
	return s.IllnessID, nil
}

func (r *memRepo) SymptomsByEpisode(_ context.Context, userID, episodeID uuid.UUID) ([]Symptom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.symptomsLocked(userID, episodeID), nil
}

func (r *memRepo) InsertDiagnosis(_ context.Context, d *Diagnosis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *d
	r.diagnoses = append(r.diagnoses, &clone)
	return nil
}

func (r *memRepo) DiagnosesByEpisode(_ context.Context, episodeID uuid.UUID) ([]Diagnosis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Diagnosis{}
	for _, d := range r.diagnoses {
		if d.IllnessID == episodeID {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedOn.Before(out[j].CreatedOn)
	})
	return out, nil
}

// activeCount reports how many of the user's episodes are active.
func (r *memRepo) activeCount(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.episodes {
		if e.UserID == userID && e.Active {
			n++
		}
	}
	return n
}

// fakeDiagClient records every call and replays canned responses.
type fakeDiagClient struct {
	mu            sync.Mutex
	conditions    []infermedica.Condition
	explanations  map[string]infermedica.Explanation
	details       map[string]infermedica.ConditionDetails
	diagnoseErr   error
	explainErr    map[string]error
	diagnoseCalls []infermedica.Evidence
	explainCalls  []string
	explainWith   []infermedica.Evidence
	infoCalls     []string
}

func newFakeDiagClient() *fakeDiagClient {
	return &fakeDiagClient{
		explanations: map[string]infermedica.Explanation{},
		details:      map[string]infermedica.ConditionDetails{},
		explainErr:   map[string]error{},
	}
}

func (c *fakeDiagClient) Diagnose(_ context.Context, ev infermedica.Evidence) ([]infermedica.Condition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnoseCalls = append(c.diagnoseCalls, ev)
	if c.diagnoseErr != nil {
		return nil, c.diagnoseErr
	}
	return c.conditions, nil
}

func (c *fakeDiagClient) Explain(_ context.Context, ev infermedica.Evidence, targetID string) (infermedica.Explanation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explainCalls = append(c.explainCalls, targetID)
	c.explainWith = append(c.explainWith, ev)
	if err := c.explainErr[targetID]; err != nil {
		return infermedica.Explanation{}, err
	}
	return c.explanations[targetID], nil
}

func (c *fakeDiagClient) ConditionInfo(_ context.Context, conditionID string) (infermedica.ConditionDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infoCalls = append(c.infoCalls, conditionID)
	return c.details[conditionID], nil
}

func (c *fakeDiagClient) diagnoseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diagnoseCalls)
}

// staticProfiles serves the same profile for every user.
type staticProfiles struct {
	profile Profile
}

func (p staticProfiles) Profile(context.Context, uuid.UUID) (Profile, error) {
	return p.profile, nil
}
