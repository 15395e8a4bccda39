package model

import (
	"context"
	"time"
)

// Human-readable names of the required assessment fields, in the order
// they are reported as missing.
const (
	FieldTopics            = "topics"
	FieldQuestionTypes     = "question types"
	FieldTotalMarks        = "total marks"
	FieldDuration          = "duration"
	FieldNumberOfQuestions = "number of questions"
)

// AllFields lists every required field name in reporting order.
var AllFields = []string{
	FieldTopics,
	FieldQuestionTypes,
	FieldTotalMarks,
	FieldDuration,
	FieldNumberOfQuestions,
}

// AssessmentParams holds the parameters collected for an assessment.
// Array fields behave as sets; nil scalars are unset.
type AssessmentParams struct {
	Topics            []string `json:"topics"`
	QuestionTypes     []string `json:"questionTypes"`
	TotalMarks        *int     `json:"totalMarks"`
	Duration          *int     `json:"duration"` // minutes
	NumberOfQuestions *int     `json:"numberOfQuestions"`
}

// DefaultParams returns parameters with nothing specified.
func DefaultParams() AssessmentParams {
	return AssessmentParams{
		Topics:        []string{},
		QuestionTypes: []string{},
	}
}

// Missing returns the names of unsatisfied fields in reporting order.
func (p AssessmentParams) Missing() []string {
	missing := []string{}
	if len(p.Topics) == 0 {
		missing = append(missing, FieldTopics)
	}
	if len(p.QuestionTypes) == 0 {
		missing = append(missing, FieldQuestionTypes)
	}
	if p.TotalMarks == nil {
		missing = append(missing, FieldTotalMarks)
	}
	if p.Duration == nil {
		missing = append(missing, FieldDuration)
	}
	if p.NumberOfQuestions == nil {
		missing = append(missing, FieldNumberOfQuestions)
	}
	return missing
}

// Complete reports whether every required field is present.
func (p AssessmentParams) Complete() bool {
	return len(p.Missing()) == 0
}

// Known reports whether at least one field is present.
func (p AssessmentParams) Known() bool {
	return len(p.Missing()) < len(AllFields)
}

// Clone returns a deep copy that shares no memory with p.
func (p AssessmentParams) Clone() AssessmentParams {
	c := AssessmentParams{
		Topics:        append([]string{}, p.Topics...),
		QuestionTypes: append([]string{}, p.QuestionTypes...),
	}
	c.TotalMarks = cloneInt(p.TotalMarks)
	c.Duration = cloneInt(p.Duration)
	c.NumberOfQuestions = cloneInt(p.NumberOfQuestions)
	return c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// ExtractionResult is the outcome of reading parameters from one user
// message. A non-nil Err marks a failed extraction whose parameters are
// empty and must be treated as "nothing understood".
type ExtractionResult struct {
	AssessmentParams
	MissingParams []string `json:"missingParams"`
	Err           error    `json:"-"`
}

// Failed reports whether the extraction degraded to an empty result.
func (r ExtractionResult) Failed() bool {
	return r.Err != nil
}

// FailedExtraction returns the degraded result for err.
func FailedExtraction(err error) ExtractionResult {
	return ExtractionResult{
		AssessmentParams: DefaultParams(),
		MissingParams:    append([]string{}, AllFields...),
		Err:              err,
	}
}

// Role represents a conversation history role.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// HistoryEntry is a single turn in a session's conversation history.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionState is everything remembered about one connection.
type SessionState struct {
	AssessmentParams    AssessmentParams `json:"assessmentParams"`
	ConversationHistory []HistoryEntry   `json:"conversationHistory"`
}

// NewSessionState returns the state of a freshly opened connection.
func NewSessionState() SessionState {
	return SessionState{
		AssessmentParams:    DefaultParams(),
		ConversationHistory: []HistoryEntry{},
	}
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	return SessionState{
		AssessmentParams:    s.AssessmentParams.Clone(),
		ConversationHistory: append([]HistoryEntry{}, s.ConversationHistory...),
	}
}

// Assessment is the structured test definition produced by the model.
// Its shape is not validated beyond being a JSON object.
type Assessment map[string]any

// AssessmentKind distinguishes archived assessments.
type AssessmentKind string

const (
	KindGenerated AssessmentKind = "generated"
	KindModified  AssessmentKind = "modified"
)

// AssessmentRecord is an archived assessment.
type AssessmentRecord struct {
	ID            string            `json:"id"`
	ConnectionID  string            `json:"connection_id"`
	Kind          AssessmentKind    `json:"kind"`
	SourceID      string            `json:"source_id,omitempty"` // client assessment id for modifications
	Params        *AssessmentParams `json:"params,omitempty"`
	Modifications map[string]any    `json:"modifications,omitempty"`
	Body          Assessment        `json:"body"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ServerConfig holds runtime transport parameters set via CLI flags.
type ServerConfig struct {
	BasePath        string        // URL prefix for sub-path deployments
	AllowedOrigins  []string      // "*" allows any origin
	AccessKeyHash   string        // bcrypt hash; empty disables the check
	PongWait        time.Duration // 0 disables keepalive pings
	MaxMessageBytes int64
	DefaultLang     string // used when the client names no language
}

type connIDCtxKey struct{}

// ContextWithConnectionID stores the connection identifier in context.
func ContextWithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDCtxKey{}, id)
}

// ConnectionIDFromContext retrieves the connection identifier (empty string if not set).
func ConnectionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connIDCtxKey{}).(string)
	return id
}
