package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/session"
)

// Inbound events.
const (
	EventGenerateAssessment = "generate_assessment"
	EventModifyAssessment   = "modify_assessment"
	EventResetConversation  = "reset_conversation"
)

// Outbound events.
const (
	EventAssessmentGenerated = "assessment_generated"
	EventAssessmentModified  = "assessment_modified"
	EventRequestParams       = "request_params"
	EventConversationReset   = "conversation_reset"
	EventError               = "error"
)

var (
	errBinaryFrame      = errors.New("binary frames are not supported")
	errOriginalRequired = errors.New("original assessment is required for modification")
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RequestParams asks the client for the fields still missing.
type RequestParams struct {
	Message       string                 `json:"message"`
	MissingParams []string               `json:"missingParams"`
	CurrentParams model.AssessmentParams `json:"currentParams"`
}

// ModifyRequest is the payload of modify_assessment.
type ModifyRequest struct {
	AssessmentID       string           `json:"assessmentId"`
	OriginalAssessment model.Assessment `json:"originalAssessment"`
	Modifications      map[string]any   `json:"modifications"`
}

// Notice carries a human-readable status message.
type Notice struct {
	Message string `json:"message"`
}

// ErrorPayload is the body of the error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (h *Handler) dispatch(ctx context.Context, c *conn, env inbound) {
	slog.Debug("event received", "conn", c.id, "event", env.Event, "bytes", len(env.Data))

	switch env.Event {
	case EventGenerateAssessment:
		h.onGenerate(ctx, c, messageText(env.Data))
	case EventModifyAssessment:
		h.onModify(ctx, c, env.Data)
	case EventResetConversation:
		h.onReset(ctx, c)
	default:
		slog.Warn("unsupported event", "conn", c.id, "event", env.Event)
		h.emitError(ctx, c, "UnsupportedEvent", fmt.Errorf("unsupported event %q", env.Event))
	}
}

func (h *Handler) onGenerate(ctx context.Context, c *conn, text string) {
	st := h.sessions.Get(c.id)
	st.ConversationHistory = append(st.ConversationHistory, model.HistoryEntry{Role: model.RoleUser, Content: text})

	result := h.extractor.Extract(ctx, text)
	st.AssessmentParams = session.Merge(st.AssessmentParams, result)

	if missing := st.AssessmentParams.Missing(); len(missing) > 0 {
		msg := missingParamsMessage(ctx, missing, st.AssessmentParams)
		st.ConversationHistory = append(st.ConversationHistory, model.HistoryEntry{Role: model.RoleSystem, Content: msg})
		h.sessions.Put(c.id, st)

		slog.Info("requesting params", "conn", c.id, "missing", missing)
		h.send(c, EventRequestParams, RequestParams{
			Message:       msg,
			MissingParams: missing,
			CurrentParams: st.AssessmentParams,
		})
		return
	}
	h.sessions.Put(c.id, st)

	a, err := h.assessor.Generate(ctx, st.AssessmentParams)
	if err != nil {
		h.emitError(ctx, c, "GenerateFailed", err)
		return
	}

	st.ConversationHistory = append(st.ConversationHistory, model.HistoryEntry{
		Role:    model.RoleSystem,
		Content: appI18n.T(ctx, "AssessmentGenerated"),
	})
	h.sessions.Put(c.id, st)
	h.send(c, EventAssessmentGenerated, a)
}

func (h *Handler) onModify(ctx context.Context, c *conn, data json.RawMessage) {
	var req ModifyRequest
	if err := decodeObject(data, &req); err != nil {
		slog.Warn("malformed modify request", "conn", c.id, "error", err)
		h.emitError(ctx, c, "ModifyFailed", err)
		return
	}
	if req.OriginalAssessment == nil {
		h.emitError(ctx, c, "OriginalRequired", errOriginalRequired)
		return
	}

	a, err := h.assessor.Modify(ctx, req.AssessmentID, req.OriginalAssessment, req.Modifications)
	if err != nil {
		h.emitError(ctx, c, "ModifyFailed", err)
		return
	}

	st := h.sessions.Get(c.id)
	st.ConversationHistory = append(st.ConversationHistory, model.HistoryEntry{
		Role:    model.RoleSystem,
		Content: appI18n.T(ctx, "AssessmentModified"),
	})
	h.sessions.Put(c.id, st)
	h.send(c, EventAssessmentModified, a)
}

func (h *Handler) onReset(ctx context.Context, c *conn) {
	h.sessions.Reset(c.id)
	slog.Info("conversation reset", "conn", c.id)
	h.send(c, EventConversationReset, Notice{Message: appI18n.T(ctx, "ConversationReset")})
}

func (h *Handler) emitError(ctx context.Context, c *conn, msgID string, err error) {
	h.send(c, EventError, ErrorPayload{
		Message: appI18n.T(ctx, msgID),
		Error:   err.Error(),
	})
}

func (h *Handler) send(c *conn, event string, data any) {
	if err := c.emit(event, data); err != nil {
		slog.Warn("emit failed", "conn", c.id, "event", event, "error", err)
	}
}

// messageText turns a generate_assessment payload into the user's text:
// a JSON string as is, the "prompt" field of an object, otherwise the raw
// JSON.
func messageText(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Prompt != "" {
		return obj.Prompt
	}
	return string(data)
}

func decodeObject(data json.RawMessage, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return errors.New("payload must be a JSON object")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

var fieldQuestions = map[string]string{
	model.FieldTopics:            "AskTopics",
	model.FieldQuestionTypes:     "AskQuestionTypes",
	model.FieldTotalMarks:        "AskTotalMarks",
	model.FieldDuration:          "AskDuration",
	model.FieldNumberOfQuestions: "AskNumberOfQuestions",
}

// missingParamsMessage builds the localized follow-up question for the
// missing fields, followed by what is already known.
func missingParamsMessage(ctx context.Context, missing []string, current model.AssessmentParams) string {
	var b strings.Builder
	b.WriteString(appI18n.T(ctx, "ProvideDetails"))
	b.WriteString("\n")
	for _, field := range missing {
		if id, ok := fieldQuestions[field]; ok {
			fmt.Fprintf(&b, "- %s\n", appI18n.T(ctx, id))
		}
	}

	if !current.Known() {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(appI18n.T(ctx, "CurrentParams"))
	b.WriteString("\n")
	line := func(id, value string) {
		fmt.Fprintf(&b, "- %s\n", appI18n.Td(ctx, id, map[string]any{"Value": value}))
	}
	if len(current.Topics) > 0 {
		line("CurrentTopics", strings.Join(current.Topics, ", "))
	}
	if len(current.QuestionTypes) > 0 {
		line("CurrentQuestionTypes", strings.Join(current.QuestionTypes, ", "))
	}
	if current.TotalMarks != nil {
		line("CurrentTotalMarks", strconv.Itoa(*current.TotalMarks))
	}
	if current.Duration != nil {
		line("CurrentDuration", strconv.Itoa(*current.Duration))
	}
	if current.NumberOfQuestions != nil {
		line("CurrentNumberOfQuestions", strconv.Itoa(*current.NumberOfQuestions))
	}
	return b.String()
}
