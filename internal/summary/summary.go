// Package summary turns detection matches into persistable records and
// the human-readable report shown to the user.
package summary

import (
	"strings"

	"github.com/opensource-health/triage/internal/domain"
)

// NoDiseaseDetected is the display text for an input that matched nothing.
const NoDiseaseDetected = "No disease detected"

// Summary is the outcome of one detection run.
type Summary struct {
	Records     []domain.DetectionRecord `json:"records"`
	DisplayText string                   `json:"displayText"`
}

// Empty reports whether the summary holds no records.
func (s Summary) Empty() bool {
	return len(s.Records) == 0
}

// Builder renders summaries.
type Builder struct {
	// NoMatchText replaces NoDiseaseDetected when set.
	NoMatchText string
}

// NewBuilder creates a builder with the default no-match text.
func NewBuilder() *Builder {
	return &Builder{NoMatchText: NoDiseaseDetected}
}

// Build converts matches into records and display text. It never fails.
func (b *Builder) Build(matches []domain.DetectionMatch) Summary {
	records := make([]domain.DetectionRecord, 0, len(matches))
	blocks := make([]string, 0, len(matches))

	for _, m := range matches {
		records = append(records, domain.DetectionRecord{
			Disease:          m.Disease,
			MedicationAdvice: m.MedicationAdvice,
			DoctorAdvice:     m.DoctorAdvice,
			Symptoms:         append([]string(nil), m.Symptoms...),
		})
		blocks = append(blocks, block(m))
	}

	if len(records) == 0 {
		return Summary{Records: records, DisplayText: b.noMatchText()}
	}

	return Summary{
		Records:     records,
		DisplayText: strings.Join(blocks, "\n\n"),
	}
}

// Build renders matches with the default builder.
func Build(matches []domain.DetectionMatch) Summary {
	return NewBuilder().Build(matches)
}

func (b *Builder) noMatchText() string {
	if b == nil || b.NoMatchText == "" {
		return NoDiseaseDetected
	}
	return b.NoMatchText
}

func block(m domain.DetectionMatch) string {
	var sb strings.Builder
	sb.WriteString("Penyakit: ")
	sb.WriteString(m.Disease)
	sb.WriteString("\nObat: ")
	sb.WriteString(m.MedicationAdvice)
	sb.WriteString("\nSaran Dokter: ")
	sb.WriteString(m.DoctorAdvice)
	sb.WriteString("\nGejala: ")
	sb.WriteString(strings.Join(m.Symptoms, ", "))
	return sb.String()
}
