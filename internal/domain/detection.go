package domain

import "time"

// DiseaseRule is one entry of the symptom lexicon.
type DiseaseRule struct {
	// Name is the unique disease identifier, e.g. "flu" or "hipertensi".
	Name string `json:"name"`

	// Keywords are lowercase fragments that trigger a match.
	Keywords []string `json:"keywords"`

	// Symptoms are shown to the user and never used for matching.
	Symptoms []string `json:"symptoms"`

	MedicationAdvice string `json:"medicationAdvice"`
	DoctorAdvice     string `json:"doctorAdvice"`

	// Expression optionally overrides the match condition with a CEL
	// expression over text, tokens and keywords.
	Expression string `json:"expression,omitempty"`
}

// DetectionMatch is a snapshot of a rule taken when it matched an input.
type DetectionMatch struct {
	Disease          string   `json:"disease"`
	MedicationAdvice string   `json:"medicationAdvice"`
	DoctorAdvice     string   `json:"doctorAdvice"`
	Symptoms         []string `json:"symptoms"`
}

// DetectionRecord is the persisted shape of a match. Advice and symptom
// fields are stored denormalized so history survives lexicon edits.
type DetectionRecord struct {
	ID               string   `json:"id,omitempty"`
	Disease          string   `json:"disease"`
	MedicationAdvice string   `json:"medicationAdvice"`
	DoctorAdvice     string   `json:"doctorAdvice"`
	Symptoms         []string `json:"symptoms"`
}

// Batch is the group of records produced from one input text.
type Batch struct {
	ID        string            `json:"batchId"`
	CreatedAt time.Time         `json:"createdAt"`
	Records   []DetectionRecord `json:"records"`
}

// AggregateStats is the overall disease-frequency breakdown.
type AggregateStats struct {
	TotalCount          int                `json:"totalCount"`
	PercentageByDisease map[string]float64 `json:"persentasePenyakit"`
}

// DiseasePercentage is the share of a single disease, formatted to two decimals.
type DiseasePercentage struct {
	Disease    string `json:"penyakit"`
	Percentage string `json:"persentase"`
}
