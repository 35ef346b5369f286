package infermedica

import "encoding/json"

// EvidenceItem is one observed symptom in the format the API expects.
type EvidenceItem struct {
	ID       string `json:"id"`
	ChoiceID string `json:"choice_id"`
}

// Evidence is the patient payload sent to /diagnosis and /explain.
type Evidence struct {
	Sex      string         `json:"sex"`
	Age      int            `json:"age"`
	Evidence []EvidenceItem `json:"evidence"`
}

// Condition is a candidate condition as returned by /diagnosis.
type Condition struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CommonName  string  `json:"common_name"`
	Probability float64 `json:"probability"`
}

type diagnoseResponse struct {
	Question   json.RawMessage `json:"question"`
	Conditions []Condition     `json:"conditions"`
	ShouldStop bool            `json:"should_stop"`
}

// ExplanationItem is one piece of evidence referenced by /explain.
type ExplanationItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CommonName string `json:"common_name"`
}

// Explanation is the /explain response for a single target condition.
type Explanation struct {
	Supporting  []ExplanationItem `json:"supporting_evidence"`
	Conflicting []ExplanationItem `json:"conflicting_evidence"`
	Unconfirmed []ExplanationItem `json:"unconfirmed_evidence"`
}

// ConditionDetails is the static metadata from /conditions/{id}.
type ConditionDetails struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CommonName string   `json:"common_name"`
	Categories []string `json:"categories"`
	Prevalence string   `json:"prevalence"`
	Severity   string   `json:"severity"`
	Extras     struct {
		Hint string `json:"hint"`
	} `json:"extras"`
}

// CatalogSymptom is one entry of the full /symptoms list.
type CatalogSymptom struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CommonName string `json:"common_name"`
	Category   string `json:"category,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
}

type explainRequest struct {
	Sex      string         `json:"sex"`
	Age      int            `json:"age"`
	Target   string         `json:"target"`
	Evidence []EvidenceItem `json:"evidence"`
}

type parseRequest struct {
	Text string `json:"text"`
}
