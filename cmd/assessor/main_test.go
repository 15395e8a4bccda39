package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"assessor", "/assessor"},
		{"/assessor/", "/assessor"},
		{" /a/b/ ", "/a/b"},
	}
	for _, tt := range tests {
		if got := normalizeBasePath(tt.in); got != tt.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashKey(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-key", "--cost", "4", "s3cret"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-key: %v", err)
	}

	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("printed hash does not match key: %v", err)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "assessments.db")

	db, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	for i, kind := range []model.AssessmentKind{model.KindGenerated, model.KindModified, model.KindGenerated} {
		err := db.SaveAssessment(model.AssessmentRecord{
			ID:   string(rune('a' + i)),
			Kind: kind,
			Body: model.Assessment{"questions": []any{}},
		})
		if err != nil {
			t.Fatalf("SaveAssessment: %v", err)
		}
	}
	db.Close()

	tests := []struct {
		kind string
		want int
	}{
		{"", 3},
		{"generated", 2},
		{"modified", 1},
	}
	for _, tt := range tests {
		t.Run("kind="+tt.kind, func(t *testing.T) {
			outPath := filepath.Join(dir, "export-"+tt.kind+".json")
			cmd := rootCmd()
			cmd.SetArgs([]string{"export", "--db", dbPath, "--kind", tt.kind, "-o", outPath})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("export: %v", err)
			}

			data, err := os.ReadFile(outPath)
			if err != nil {
				t.Fatalf("read export: %v", err)
			}
			var export model.AssessmentExport
			if err := json.Unmarshal(data, &export); err != nil {
				t.Fatalf("decode export: %v", err)
			}
			if export.Count != tt.want || len(export.Assessments) != tt.want {
				t.Errorf("got count %d with %d assessments, want %d", export.Count, len(export.Assessments), tt.want)
			}
		})
	}
}

func TestExportRejectsUnknownKind(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"export", "--db", filepath.Join(t.TempDir(), "a.db"), "--kind", "deleted"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}
