// Package assessment generates and modifies assessments through the
// language model.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
)

var (
	// ErrGenerate is returned for any generation failure; the cause is logged only.
	ErrGenerate = errors.New("failed to generate assessment")
	// ErrModify is returned for any modification failure; the cause is logged only.
	ErrModify = errors.New("failed to modify assessment")
	// ErrIncompleteParams reports a Generate call with missing parameters.
	ErrIncompleteParams = errors.New("assessment parameters are incomplete")
)

// Archive records successful results. It may be nil.
type Archive interface {
	SaveAssessment(rec model.AssessmentRecord) error
}

// Service orchestrates generation and modification requests.
type Service struct {
	llm     llm.Completer
	archive Archive
}

// New creates a Service. archive may be nil.
func New(c llm.Completer, archive Archive) *Service {
	return &Service{llm: c, archive: archive}
}

// Generate builds an assessment from complete parameters.
func (s *Service) Generate(ctx context.Context, params model.AssessmentParams) (model.Assessment, error) {
	conn := model.ConnectionIDFromContext(ctx)
	if missing := params.Missing(); len(missing) > 0 {
		slog.Error("assessment generation refused", "conn", conn, "missing", missing)
		return nil, ErrIncompleteParams
	}
	slog.Info("generating assessment", "conn", conn, "params", params)

	prompt, err := prompts.BuildGeneratePrompt(params)
	if err != nil {
		slog.Error("assessment generation failed", "conn", conn, "stage", "prompt", "error", err)
		return nil, ErrGenerate
	}

	a, err := s.complete(ctx, prompt)
	if err != nil {
		slog.Error("assessment generation failed", "conn", conn, "error", err)
		return nil, ErrGenerate
	}

	p := params.Clone()
	s.record(model.AssessmentRecord{
		ConnectionID: conn,
		Kind:         model.KindGenerated,
		Params:       &p,
		Body:         a,
	})
	slog.Info("assessment generated", "conn", conn, "questions", countQuestions(a))
	return a, nil
}

// Modify applies the requested modifications to original.
func (s *Service) Modify(ctx context.Context, assessmentID string, original model.Assessment, modifications map[string]any) (model.Assessment, error) {
	conn := model.ConnectionIDFromContext(ctx)
	slog.Info("modifying assessment", "conn", conn, "assessment_id", assessmentID, "modifications", modifications)

	prompt, err := prompts.BuildModifyPrompt(assessmentID, original, modifications)
	if err != nil {
		slog.Error("assessment modification failed", "conn", conn, "assessment_id", assessmentID, "stage", "prompt", "error", err)
		return nil, ErrModify
	}

	a, err := s.complete(ctx, prompt)
	if err != nil {
		slog.Error("assessment modification failed", "conn", conn, "assessment_id", assessmentID, "error", err)
		return nil, ErrModify
	}

	s.record(model.AssessmentRecord{
		ConnectionID:  conn,
		Kind:          model.KindModified,
		SourceID:      assessmentID,
		Modifications: modifications,
		Body:          a,
	})
	slog.Info("assessment modified", "conn", conn, "assessment_id", assessmentID)
	return a, nil
}

// complete sends prompt with the system instruction and decodes the reply.
func (s *Service) complete(ctx context.Context, prompt string) (model.Assessment, error) {
	system, err := prompts.SystemPrompt()
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.Complete(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("collaborator: %w", err)
	}

	cleaned := llm.ExtractJSON(reply)
	slog.Debug("cleaned assessment response", "text", cleaned)

	var a model.Assessment
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, fmt.Errorf("parse assessment response: %w", err)
	}
	if a == nil {
		return nil, errors.New("parse assessment response: null object")
	}
	return a, nil
}

func (s *Service) record(rec model.AssessmentRecord) {
	if s.archive == nil {
		return
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	if err := s.archive.SaveAssessment(rec); err != nil {
		slog.Warn("archive assessment", "conn", rec.ConnectionID, "kind", rec.Kind, "error", err)
	}
}

func countQuestions(a model.Assessment) int {
	qs, _ := a["questions"].([]any)
	return len(qs)
}
