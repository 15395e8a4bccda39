// Package extract reads assessment parameters out of free-form user
// messages with the help of the language model.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
)

// ErrEmptyMessage is the failure recorded for blank user messages.
var ErrEmptyMessage = errors.New("message must be a non-empty string")

// rawParams is the schema the model's answer must satisfy. Strict decoding
// enforces the element types; the tags enforce presence of the arrays.
// Elements are pointers so that a null element is caught instead of
// decoding to "".
type rawParams struct {
	Topics            []*string `json:"topics" validate:"required"`
	QuestionTypes     []*string `json:"questionTypes" validate:"required"`
	TotalMarks        *float64  `json:"totalMarks"`
	Duration          *float64  `json:"duration"`
	NumberOfQuestions *float64  `json:"numberOfQuestions"`
}

// requiredKeys must appear in every answer. Scalars may be null but not
// absent.
var requiredKeys = []string{"topics", "questionTypes", "totalMarks", "duration", "numberOfQuestions"}

// Extractor turns a user utterance into assessment parameters.
type Extractor struct {
	llm      llm.Completer
	validate *validator.Validate
}

// New creates an Extractor backed by the given collaborator.
func New(c llm.Completer) *Extractor {
	return &Extractor{
		llm:      c,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Extract asks the model for the parameters mentioned in message. It never
// returns an error: any failure is logged and reported as a failed result
// whose fields are all missing.
func (e *Extractor) Extract(ctx context.Context, message string) model.ExtractionResult {
	params, err := e.extract(ctx, message)
	if err != nil {
		slog.Error("parameter extraction failed",
			"conn", model.ConnectionIDFromContext(ctx),
			"error", err,
		)
		return model.FailedExtraction(err)
	}
	return model.ExtractionResult{
		AssessmentParams: params,
		MissingParams:    params.Missing(),
	}
}

func (e *Extractor) extract(ctx context.Context, message string) (model.AssessmentParams, error) {
	if strings.TrimSpace(message) == "" {
		return model.AssessmentParams{}, ErrEmptyMessage
	}
	slog.Info("extracting parameters", "conn", model.ConnectionIDFromContext(ctx), "message", message)

	instruction, err := prompts.ExtractionInstruction()
	if err != nil {
		return model.AssessmentParams{}, err
	}

	reply, err := e.llm.Complete(ctx, instruction, message)
	if err != nil {
		return model.AssessmentParams{}, fmt.Errorf("collaborator: %w", err)
	}
	slog.Debug("raw parameter extraction response", "raw", reply)

	return e.parse(reply)
}

// parse decodes and validates the model reply.
func (e *Extractor) parse(reply string) (model.AssessmentParams, error) {
	body := []byte(llm.ExtractJSON(reply))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return model.AssessmentParams{}, fmt.Errorf("parse extraction response: %w", err)
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return model.AssessmentParams{}, fmt.Errorf("validate extraction response: missing key %q", key)
		}
	}

	var raw rawParams
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.AssessmentParams{}, fmt.Errorf("parse extraction response: %w", err)
	}
	if err := e.validate.Struct(raw); err != nil {
		return model.AssessmentParams{}, fmt.Errorf("validate extraction response: %w", err)
	}
	topics, err := derefStrings("topics", raw.Topics)
	if err != nil {
		return model.AssessmentParams{}, err
	}
	questionTypes, err := derefStrings("questionTypes", raw.QuestionTypes)
	if err != nil {
		return model.AssessmentParams{}, err
	}

	return model.AssessmentParams{
		Topics:            cleanStrings(topics),
		QuestionTypes:     cleanStrings(questionTypes),
		TotalMarks:        positiveInt(raw.TotalMarks),
		Duration:          positiveInt(raw.Duration),
		NumberOfQuestions: positiveInt(raw.NumberOfQuestions),
	}, nil
}

func derefStrings(key string, in []*string) ([]string, error) {
	out := make([]string, 0, len(in))
	for i, s := range in {
		if s == nil {
			return nil, fmt.Errorf("validate extraction response: %s[%d] is null", key, i)
		}
		out = append(out, *s)
	}
	return out, nil
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// positiveInt rounds v; zero and negative values count as unset.
func positiveInt(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(math.Round(*v))
	if n <= 0 {
		return nil
	}
	return &n
}
