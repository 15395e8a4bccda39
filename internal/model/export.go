package model

import "time"

// AssessmentExport is the top-level JSON structure for archive export.
type AssessmentExport struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Kind        string             `json:"kind,omitempty"`
	Count       int                `json:"count"`
	Assessments []AssessmentRecord `json:"assessments"`
}
