package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/pavelanni/assessor/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

var funcs = template.FuncMap{
	"join": strings.Join,
	"deref": func(v *int) string {
		if v == nil {
			return "unspecified"
		}
		return strconv.Itoa(*v)
	},
}

// ExtractData holds template data for the parameter extraction prompt.
type ExtractData struct {
	Fields []string
}

// ModifyData holds template data for modification prompts.
type ModifyData struct {
	AssessmentID  string
	Original      string
	Modifications string
}

// Load parses the embedded prompt templates.
// It uses sync.Once to ensure templates are parsed only once.
func Load() error {
	loadOnce.Do(func() {
		t, err := template.New("prompts").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
		if err != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", err)
			return
		}
		templates = t
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	tmpl := templates.Lookup(name)
	if tmpl == nil {
		return "", errors.New("unknown prompt template: " + name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExtractionInstruction returns the fixed instruction sent with every user
// message when extracting parameters.
func ExtractionInstruction() (string, error) {
	return render("extract.tmpl", ExtractData{Fields: model.AllFields})
}

// SystemPrompt returns the instruction describing the assessment JSON shape.
func SystemPrompt() (string, error) {
	return render("system.tmpl", nil)
}

// BuildGeneratePrompt summarizes the collected parameters for generation.
func BuildGeneratePrompt(params model.AssessmentParams) (string, error) {
	return render("generate.tmpl", params)
}

// BuildModifyPrompt describes the requested modifications against the
// original assessment.
func BuildModifyPrompt(assessmentID string, original model.Assessment, modifications map[string]any) (string, error) {
	orig, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal original assessment: %w", err)
	}
	mods, err := json.MarshalIndent(modifications, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal modifications: %w", err)
	}
	return render("modify.tmpl", ModifyData{
		AssessmentID:  assessmentID,
		Original:      string(orig),
		Modifications: string(mods),
	})
}
