package model

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestMissing(t *testing.T) {
	full := AssessmentParams{
		Topics:            []string{"Algebra"},
		QuestionTypes:     []string{"MCQ"},
		TotalMarks:        IntPtr(50),
		Duration:          IntPtr(60),
		NumberOfQuestions: IntPtr(5),
	}

	tests := []struct {
		name   string
		params AssessmentParams
		want   []string
	}{
		{"empty", DefaultParams(), AllFields},
		{"zero value", AssessmentParams{}, AllFields},
		{"full", full, []string{}},
		{"only question types missing", AssessmentParams{
			Topics:            []string{"Algebra", "Geometry"},
			TotalMarks:        IntPtr(50),
			Duration:          IntPtr(60),
			NumberOfQuestions: IntPtr(5),
		}, []string{FieldQuestionTypes}},
		{"scalars missing", AssessmentParams{
			Topics:        []string{"Physics"},
			QuestionTypes: []string{"short answer"},
		}, []string{FieldTotalMarks, FieldDuration, FieldNumberOfQuestions}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.params.Missing()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Missing() = %v, want %v", got, tt.want)
			}
		})
	}

	if !full.Complete() {
		t.Error("full params should be complete")
	}
	if DefaultParams().Known() {
		t.Error("default params should not report known fields")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	p := AssessmentParams{Topics: []string{"A"}, QuestionTypes: []string{"MCQ"}, TotalMarks: IntPtr(10)}
	c := p.Clone()
	c.Topics[0] = "B"
	*c.TotalMarks = 20

	if p.Topics[0] != "A" {
		t.Errorf("original topics changed to %q", p.Topics[0])
	}
	if *p.TotalMarks != 10 {
		t.Errorf("original total marks changed to %d", *p.TotalMarks)
	}
}

func TestDefaultParamsJSON(t *testing.T) {
	data, err := json.Marshal(DefaultParams())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"topics":[],"questionTypes":[],"totalMarks":null,"duration":null,"numberOfQuestions":null}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestFailedExtraction(t *testing.T) {
	res := FailedExtraction(errors.New("boom"))
	if !res.Failed() {
		t.Fatal("expected failed result")
	}
	if !reflect.DeepEqual(res.MissingParams, AllFields) {
		t.Errorf("MissingParams = %v, want %v", res.MissingParams, AllFields)
	}
	res.MissingParams[0] = "changed"
	if AllFields[0] != FieldTopics {
		t.Error("FailedExtraction must not share AllFields")
	}
}

func TestConnectionIDContext(t *testing.T) {
	ctx := context.Background()
	if got := ConnectionIDFromContext(ctx); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
	ctx = ContextWithConnectionID(ctx, "abc")
	if got := ConnectionIDFromContext(ctx); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}
