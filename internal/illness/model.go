package illness

import (
	"time"

	"github.com/google/uuid"

	"symptom-tracker/internal/infermedica"
)

// TimeFormat is the fixed UTC layout used in all serialized timestamps.
const TimeFormat = "2006-01-02T15:04:05Z"

// DefaultTitle is assigned to episodes created implicitly on first
// symptom submission.
const DefaultTitle = "Untitled Illness"

// Episode is one bounded period of illness for a user. At most one
// episode per user is active at any time.
type Episode struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Active    bool      `json:"active" db:"active"`
	CreatedOn time.Time `json:"created_on" db:"created_on"`
	UpdatedOn time.Time `json:"updated_on" db:"updated_on"`

	Symptoms  []Symptom   `json:"symptoms"`
	Diagnoses []Diagnosis `json:"diagnoses"`
}

// SymptomData is the opaque structured payload recorded per symptom,
// keyed by the external symptom identifier.
type SymptomData struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	CommonName string `json:"common_name"`
	Orth       string `json:"orth,omitempty"`
	ChoiceID   string `json:"choice_id,omitempty"`
	Type       string `json:"type,omitempty"`
}

type Symptom struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	UserID    uuid.UUID   `json:"user_id" db:"user_id"`
	IllnessID uuid.UUID   `json:"illness_id" db:"illness_id"`
	Title     string      `json:"title" db:"title"`
	Data      SymptomData `json:"data" db:"data"`
	CreatedOn time.Time   `json:"created_on" db:"created_on"`
	UpdatedOn time.Time   `json:"updated_on" db:"updated_on"`
}

// Condition is one enriched candidate condition inside a diagnosis
// snapshot: the fields returned by the diagnose call plus the merged
// explanation and static metadata.
type Condition struct {
	ID                 string                       `json:"id"`
	Name               string                       `json:"name"`
	CommonName         string                       `json:"common_name"`
	Probability        float64                      `json:"probability"`
	SupportingSymptoms []infermedica.ExplanationItem `json:"supporting_symptoms"`
	OpposingSymptoms   []infermedica.ExplanationItem `json:"opposing_symptoms"`
	Hint               string                       `json:"hint"`
	Categories         []string                     `json:"categories"`
	Prevalence         string                       `json:"prevalence"`
	Severity           string                       `json:"severity"`
}

// Diagnosis is one immutable snapshot of the enriched condition list.
// Every pipeline run appends a new row; the episode's current diagnosis
// is the most recent snapshot.
type Diagnosis struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	UserID     uuid.UUID   `json:"user_id" db:"user_id"`
	IllnessID  uuid.UUID   `json:"illness_id" db:"illness_id"`
	CreatedOn  time.Time   `json:"created_on" db:"created_on"`
	Conditions []Condition `json:"conditions"`
}

// SymptomView is the serialized form of a symptom.
type SymptomView struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	CreatedOn   string      `json:"created_on"`
	UpdatedOn   string      `json:"updated_on"`
	SymptomJSON SymptomData `json:"symptom_json"`
}

// EpisodeView is the serialization contract for an episode: fixed UTC
// timestamps, the full symptom list and the first three conditions of
// the latest diagnosis snapshot.
type EpisodeView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Active    bool          `json:"active"`
	CreatedOn string        `json:"created_on"`
	UpdatedOn string        `json:"updated_on"`
	Symptoms  []SymptomView `json:"symptoms"`
	Diagnosis []Condition   `json:"diagnosis"`
}

func (s *Symptom) View() SymptomView {
	return SymptomView{
		ID:          s.ID.String(),
		Title:       s.Title,
		CreatedOn:   s.CreatedOn.UTC().Format(TimeFormat),
		UpdatedOn:   s.UpdatedOn.UTC().Format(TimeFormat),
		SymptomJSON: s.Data,
	}
}

func (e *Episode) View() EpisodeView {
	symptoms := make([]SymptomView, 0, len(e.Symptoms))
	for i := range e.Symptoms {
		symptoms = append(symptoms, e.Symptoms[i].View())
	}

	diagnosis := []Condition{}
	if len(e.Diagnoses) > 0 {
		latest := e.Diagnoses[len(e.Diagnoses)-1]
		if len(latest.Conditions) > 3 {
			diagnosis = latest.Conditions[:3]
		} else if latest.Conditions != nil {
			diagnosis = latest.Conditions
		}
	}

	return EpisodeView{
		ID:        e.ID.String(),
		Title:     e.Title,
		Active:    e.Active,
		CreatedOn: e.CreatedOn.UTC().Format(TimeFormat),
		UpdatedOn: e.UpdatedOn.UTC().Format(TimeFormat),
		Symptoms:  symptoms,
		Diagnosis: diagnosis,
	}
}
