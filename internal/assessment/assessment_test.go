package assessment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/assessor/internal/model"
)

type fakeCompleter struct {
	reply  string
	err    error
	calls  int
	system string
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, instruction, text string) (string, error) {
	f.calls++
	f.system = instruction
	f.prompt = text
	return f.reply, f.err
}

type fakeArchive struct {
	records []model.AssessmentRecord
	err     error
}

func (f *fakeArchive) SaveAssessment(rec model.AssessmentRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

const assessmentJSON = `{"questions":[{"id":"1","type":"MCQ","text":"What is 2x if x=3?","marks":10,"options":["5","6"],"correctAnswer":"6"}],"totalMarks":50,"duration":60,"topics":["Algebra","Geometry"]}`

func completeParams() model.AssessmentParams {
	return model.AssessmentParams{
		Topics:            []string{"Algebra", "Geometry"},
		QuestionTypes:     []string{"MCQ"},
		TotalMarks:        model.IntPtr(50),
		Duration:          model.IntPtr(60),
		NumberOfQuestions: model.IntPtr(5),
	}
}

func TestGenerate(t *testing.T) {
	fc := &fakeCompleter{reply: "Here is your assessment:\n```json\n" + assessmentJSON + "\n```"}
	arch := &fakeArchive{}
	svc := New(fc, arch)

	ctx := model.ContextWithConnectionID(context.Background(), "conn-1")
	a, err := svc.Generate(ctx, completeParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, key := range []string{"questions", "totalMarks", "duration", "topics"} {
		if _, ok := a[key]; !ok {
			t.Errorf("assessment missing %q", key)
		}
	}
	if countQuestions(a) != 1 {
		t.Errorf("expected 1 question, got %d", countQuestions(a))
	}
	if !strings.Contains(fc.system, "assessment generator") {
		t.Error("generation should send the system prompt")
	}
	if !strings.Contains(fc.prompt, "- Topics: Algebra, Geometry") {
		t.Errorf("generation prompt should summarize params, got:\n%s", fc.prompt)
	}

	if len(arch.records) != 1 {
		t.Fatalf("expected 1 archived record, got %d", len(arch.records))
	}
	rec := arch.records[0]
	if rec.Kind != model.KindGenerated || rec.ConnectionID != "conn-1" || rec.ID == "" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Params == nil || *rec.Params.TotalMarks != 50 {
		t.Errorf("record should carry params, got %+v", rec.Params)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"collaborator error", "", errors.New("quota exceeded")},
		{"no json", "Sorry, I cannot do that.", nil},
		{"broken json", `{"questions": [`, nil},
		{"array instead of object", `[1, 2, 3]`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arch := &fakeArchive{}
			svc := New(&fakeCompleter{reply: tt.reply, err: tt.err}, arch)

			a, err := svc.Generate(context.Background(), completeParams())
			if !errors.Is(err, ErrGenerate) {
				t.Fatalf("expected ErrGenerate, got %v", err)
			}
			if err.Error() != "failed to generate assessment" {
				t.Errorf("error should not expose the cause, got %q", err.Error())
			}
			if a != nil {
				t.Errorf("expected nil assessment, got %v", a)
			}
			if len(arch.records) != 0 {
				t.Error("failures must not be archived")
			}
		})
	}
}

func TestGenerateRequiresCompleteParams(t *testing.T) {
	fc := &fakeCompleter{reply: assessmentJSON}
	p := completeParams()
	p.QuestionTypes = nil

	_, err := New(fc, nil).Generate(context.Background(), p)
	if !errors.Is(err, ErrIncompleteParams) {
		t.Fatalf("expected ErrIncompleteParams, got %v", err)
	}
	if fc.calls != 0 {
		t.Error("incomplete params must not reach the collaborator")
	}
}

func TestGenerateArchiveErrorIgnored(t *testing.T) {
	svc := New(&fakeCompleter{reply: assessmentJSON}, &fakeArchive{err: errors.New("disk full")})
	if _, err := svc.Generate(context.Background(), completeParams()); err != nil {
		t.Fatalf("archive errors should not fail generation: %v", err)
	}
}

func TestModify(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n" + assessmentJSON + "\n```"}
	arch := &fakeArchive{}
	svc := New(fc, arch)

	original := model.Assessment{"questions": []any{map[string]any{"id": "1", "text": "Old question"}}}
	mods := map[string]any{"questionType": "multiple-choice", "questionIndex": 0}

	a, err := svc.Modify(context.Background(), "test-id", original, mods)
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if a["totalMarks"] != float64(50) {
		t.Errorf("unexpected totalMarks %v", a["totalMarks"])
	}
	if !strings.Contains(fc.prompt, "Old question") {
		t.Error("modification prompt should include the original assessment")
	}
	if !strings.Contains(fc.prompt, "multiple-choice") {
		t.Error("modification prompt should include the modifications")
	}

	if len(arch.records) != 1 {
		t.Fatalf("expected 1 archived record, got %d", len(arch.records))
	}
	rec := arch.records[0]
	if rec.Kind != model.KindModified || rec.SourceID != "test-id" || rec.Params != nil {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestModifyFailure(t *testing.T) {
	svc := New(&fakeCompleter{err: errors.New("timeout")}, nil)
	_, err := svc.Modify(context.Background(), "id", model.Assessment{"questions": []any{}}, nil)
	if !errors.Is(err, ErrModify) {
		t.Fatalf("expected ErrModify, got %v", err)
	}
}
