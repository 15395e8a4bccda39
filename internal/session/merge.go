package session

import "github.com/pavelanni/assessor/internal/model"

// Merge folds one turn's extraction into the parameters collected so far.
// Array fields are unioned; a scalar from incoming replaces the existing
// one only when it is set.
func Merge(existing model.AssessmentParams, incoming model.ExtractionResult) model.AssessmentParams {
	return model.AssessmentParams{
		Topics:            union(existing.Topics, incoming.Topics),
		QuestionTypes:     union(existing.QuestionTypes, incoming.QuestionTypes),
		TotalMarks:        coalesce(incoming.TotalMarks, existing.TotalMarks),
		Duration:          coalesce(incoming.Duration, existing.Duration),
		NumberOfQuestions: coalesce(incoming.NumberOfQuestions, existing.NumberOfQuestions),
	}
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func coalesce(preferred, fallback *int) *int {
	v := preferred
	if v == nil {
		v = fallback
	}
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
