package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// ExportAssessments builds the export document for archived assessments.
// An empty kind exports every kind.
func (s *Store) ExportAssessments(kind model.AssessmentKind) (model.AssessmentExport, error) {
	records, err := s.ListAssessments(kind)
	if err != nil {
		return model.AssessmentExport{}, fmt.Errorf("list assessments: %w", err)
	}
	if records == nil {
		records = []model.AssessmentRecord{}
	}
	return model.AssessmentExport{
		GeneratedAt: time.Now().UTC(),
		Kind:        string(kind),
		Count:       len(records),
		Assessments: records,
	}, nil
}
