package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
	"github.com/formsage/formsage/internal/core/ports/driving"
	"github.com/formsage/formsage/internal/highlight"
	"github.com/formsage/formsage/internal/logger"
)

// Ensure AnswerOrchestrator implements the interface.
var _ driving.ChatService = (*AnswerOrchestrator)(nil)

// eventBuffer sizes the stream channel so slow transports do not stall
// generation immediately.
const eventBuffer = 64

// historyTurns is the number of prior messages included in a general
// multi-turn prompt.
const historyTurns = 10

// RetrievalConfig holds the per-call-site retrieval tuning. The chat
// answering site uses a looser threshold than highlight resolution.
type RetrievalConfig struct {
	ChatTopK           int
	ChatThreshold      float64
	HighlightTopK      int
	HighlightThreshold float64
}

// DefaultRetrievalConfig returns the built-in tuning.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		ChatTopK:           DefaultTopK,
		ChatThreshold:      DefaultThreshold,
		HighlightTopK:      4,
		HighlightThreshold: 0.65,
	}
}

// AnswerOrchestrator turns one question into an ordered event stream:
// retrieval status, optional highlight, answer tokens, then done. One
// request produces one stream; concurrent questions share no mutable
// state.
type AnswerOrchestrator struct {
	docStore  driven.DocumentStore
	chatStore driven.ChatStore
	retriever *Retriever
	llm       driven.LLMService
	locator   *highlight.Locator
	advisor   driven.Advisor
	cfg       RetrievalConfig
	now       func() time.Time
}

// NewAnswerOrchestrator creates the orchestrator. advisor may be nil.
func NewAnswerOrchestrator(
	docStore driven.DocumentStore,
	chatStore driven.ChatStore,
	retriever *Retriever,
	llm driven.LLMService,
	locator *highlight.Locator,
	advisor driven.Advisor,
	cfg RetrievalConfig,
) *AnswerOrchestrator {
	return &AnswerOrchestrator{
		docStore:  docStore,
		chatStore: chatStore,
		retriever: retriever,
		llm:       llm,
		locator:   locator,
		advisor:   advisor,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Ask validates the request, persists the user turn and returns the event
// stream. Validation failures surface here, before any event is emitted;
// failures after streaming begins end the stream without a done event.
func (o *AnswerOrchestrator) Ask(ctx context.Context, req driving.AskRequest) (<-chan domain.ChatEvent, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if o.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	if req.Mode == "" {
		req.Mode = driving.ModeQA
	}

	var doc *domain.Document
	if req.DocumentID != "" {
		var err error
		doc, err = o.docStore.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("get document: %w", err)
		}
		if doc.IngestStatus != domain.IngestReady {
			return nil, fmt.Errorf("%w: status is %s", domain.ErrNotReady, doc.IngestStatus)
		}
	}

	session, err := o.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	userMsg := &domain.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   req.Question,
		Language:  req.Language,
		CreatedAt: o.now().UTC(),
	}
	if err := o.chatStore.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	events := make(chan domain.ChatEvent, eventBuffer)
	go func() {
		defer close(events)
		if doc != nil {
			o.streamGrounded(ctx, events, session, doc, req)
		} else {
			o.streamGeneral(ctx, events, session, req)
		}
	}()

	return events, nil
}

// resolveSession loads the requested session or starts a new one titled
// after the opening question.
func (o *AnswerOrchestrator) resolveSession(ctx context.Context, req driving.AskRequest) (*domain.ChatSession, error) {
	if req.SessionID != "" {
		session, err := o.chatStore.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		return session, nil
	}

	session := &domain.ChatSession{
		ID:         uuid.New().String(),
		DocumentID: req.DocumentID,
		Title:      domain.NewSessionTitle(req.Question),
		CreatedAt:  o.now().UTC(),
	}
	if err := o.chatStore.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// streamGrounded runs the document-grounded flow:
// status* -> highlight? -> answer_token* -> done.
func (o *AnswerOrchestrator) streamGrounded(
	ctx context.Context,
	events chan<- domain.ChatEvent,
	session *domain.ChatSession,
	doc *domain.Document,
	req driving.AskRequest,
) {
	logger.Section("Answer (grounded)")

	// The first event carries the session id so the caller can persist it
	// even if the stream is interrupted later.
	if !o.emit(ctx, events, domain.ChatEvent{
		Type:      domain.EventStatus,
		SessionID: session.ID,
		Stage:     domain.StageReading,
	}) {
		return
	}

	var (
		contextBlock string
		sources      []domain.MessageSource
	)
	if req.Mode == driving.ModeSummary {
		chunks, err := o.retriever.All(ctx, doc.ID)
		if err != nil {
			logger.Warn("Full-context retrieval failed: %v", err)
			return
		}
		contextBlock = buildFullContext(chunks)
	} else {
		results, err := o.retriever.TopK(ctx, doc.ID, req.Question, o.cfg.ChatTopK, o.cfg.ChatThreshold)
		if err != nil {
			logger.Warn("Retrieval failed: %v", err)
			return
		}
		contextBlock = buildContext(results)
		sources = buildSources(results)
	}

	if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventStatus, Stage: domain.StageSelectingSources}) {
		return
	}

	// Highlight phase is optional: any failure in classification,
	// retrieval or lookup skips it and the flow continues.
	if req.Mode == driving.ModeQA {
		if loc, ok := o.resolveHighlight(ctx, doc.ID, req.Question); ok {
			if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventStatus, Stage: domain.StageLocatingField}) {
				return
			}
			if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventHighlight, Highlight: loc}) {
				return
			}
		}
	}

	if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventStatus, Stage: domain.StageWriting}) {
		return
	}

	prompt := req.Question
	opts := driven.GenerateOptions{
		MaxTokens:    2048,
		Temperature:  0.2,
		SystemPrompt: fmt.Sprintf(groundedSystemPrompt, languageName(req.Language), contextBlock),
	}

	answer, ok := o.streamAnswer(ctx, events, prompt, opts)
	if !ok {
		return
	}

	o.persistAssistant(ctx, session.ID, answer, req.Language, sources)
	o.emit(ctx, events, domain.ChatEvent{Type: domain.EventDone, Sources: sources})
}

// streamGeneral runs the general flow:
// thinking -> plan_token* -> thinking -> status_update -> answer_token* -> done.
func (o *AnswerOrchestrator) streamGeneral(
	ctx context.Context,
	events chan<- domain.ChatEvent,
	session *domain.ChatSession,
	req driving.AskRequest,
) {
	logger.Section("Answer (general)")

	if !o.emit(ctx, events, domain.ChatEvent{
		Type:      domain.EventThinking,
		SessionID: session.ID,
		Phase:     "start",
	}) {
		return
	}

	// The plan gives the caller early, cheap feedback while the full
	// answer is generated. A plan failure skips the phase silently.
	plan, err := o.llm.Generate(ctx, fmt.Sprintf(planPrompt, req.Question), driven.GenerateOptions{
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		logger.Debug("Plan generation failed, skipping: %v", err)
	} else {
		for _, token := range planTokens(plan) {
			if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventPlanToken, Token: token}) {
				return
			}
		}
	}

	if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventThinking, Phase: "end"}) {
		return
	}
	if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventStatusUpdate, Stage: domain.StageWriting}) {
		return
	}

	opts := driven.GenerateOptions{
		MaxTokens:    2048,
		Temperature:  0.2,
		SystemPrompt: fmt.Sprintf(generalSystemPrompt, languageName(req.Language), o.adviceBlock(ctx)),
	}

	answer, ok := o.streamAnswer(ctx, events, o.historyPrompt(ctx, session.ID, req.Question), opts)
	if !ok {
		return
	}

	o.persistAssistant(ctx, session.ID, answer, req.Language, nil)
	o.emit(ctx, events, domain.ChatEvent{Type: domain.EventDone})
}

// streamAnswer runs streaming generation, forwarding each fragment as an
// answer_token event. It returns the accumulated answer and whether the
// stream completed. On failure or cancellation nothing is persisted and
// no done event follows.
func (o *AnswerOrchestrator) streamAnswer(
	ctx context.Context,
	events chan<- domain.ChatEvent,
	prompt string,
	opts driven.GenerateOptions,
) (string, bool) {
	var answer strings.Builder

	err := o.llm.GenerateStream(ctx, prompt, opts, func(token string) error {
		answer.WriteString(token)
		if !o.emit(ctx, events, domain.ChatEvent{Type: domain.EventAnswerToken, Token: token}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		logger.Warn("Generation ended early: %v", err)
		return "", false
	}

	return answer.String(), true
}

// resolveHighlight classifies the question, checks that the document
// actually carries content for the named field, then looks up the field
// location. Every step is best-effort.
func (o *AnswerOrchestrator) resolveHighlight(ctx context.Context, documentID, question string) (*domain.FieldLocation, bool) {
	if o.locator == nil {
		return nil, false
	}

	raw, err := o.llm.Generate(ctx, fmt.Sprintf(classifyPrompt, question), driven.GenerateOptions{
		MaxTokens:   128,
		Temperature: 0,
		JSONOutput:  true,
	})
	if err != nil {
		logger.Debug("Highlight classification failed, skipping: %v", err)
		return nil, false
	}

	var verdict struct {
		IsLocationQuestion bool   `json:"is_location_question"`
		FieldLabel         string `json:"field_label"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &verdict); err != nil {
		logger.Debug("Highlight classification returned malformed JSON, skipping: %v", err)
		return nil, false
	}
	if !verdict.IsLocationQuestion || verdict.FieldLabel == "" {
		return nil, false
	}

	// A highlight is only offered when the document itself contains
	// content close to the named field, under a threshold stricter
	// than the one used for answer grounding.
	evidence, err := o.retriever.TopK(ctx, documentID, verdict.FieldLabel, o.cfg.HighlightTopK, o.cfg.HighlightThreshold)
	if err != nil {
		logger.Debug("Highlight evidence retrieval failed, skipping: %v", err)
		return nil, false
	}
	if len(evidence) == 0 {
		logger.Debug("No chunk supports field %q, skipping highlight", verdict.FieldLabel)
		return nil, false
	}

	loc, ok := o.locator.Locate(verdict.FieldLabel)
	if !ok {
		logger.Debug("No template location for %q", verdict.FieldLabel)
		return nil, false
	}
	return loc, true
}

// adviceBlock asks the optional advisor for a prompt injection block.
func (o *AnswerOrchestrator) adviceBlock(ctx context.Context) string {
	if o.advisor == nil {
		return ""
	}
	block, err := o.advisor.Advise(ctx, nil)
	if err != nil {
		logger.Debug("Advisor unavailable: %v", err)
		return ""
	}
	if block == "" {
		return ""
	}
	return "\n\n" + block
}

// historyPrompt prepends recent session turns so general chat is
// multi-turn.
func (o *AnswerOrchestrator) historyPrompt(ctx context.Context, sessionID, question string) string {
	msgs, err := o.chatStore.ListMessages(ctx, sessionID)
	if err != nil || len(msgs) <= 1 {
		return question
	}

	// The latest user message is the question itself.
	msgs = msgs[:len(msgs)-1]
	if len(msgs) > historyTurns {
		msgs = msgs[len(msgs)-historyTurns:]
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\nuser: ")
	b.WriteString(question)
	return b.String()
}

// persistAssistant stores the completed answer. Called only after the
// token stream finished; an interrupted stream persists nothing.
func (o *AnswerOrchestrator) persistAssistant(ctx context.Context, sessionID, answer, language string, sources []domain.MessageSource) {
	msg := &domain.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   answer,
		Language:  language,
		Sources:   sources,
		CreatedAt: o.now().UTC(),
	}
	if err := o.chatStore.AppendMessage(ctx, msg); err != nil {
		logger.Warn("Failed to persist assistant message: %v", err)
	}
}

// emit sends an event unless the caller has gone away.
func (o *AnswerOrchestrator) emit(ctx context.Context, events chan<- domain.ChatEvent, ev domain.ChatEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildSources converts retrieval results into message citations.
func buildSources(results []domain.SimilarityResult) []domain.MessageSource {
	sources := make([]domain.MessageSource, len(results))
	for i, r := range results {
		sources[i] = domain.MessageSource{
			ChunkID:    r.Chunk.ID,
			Snippet:    domain.Truncate(r.Chunk.Text, domain.MaxSourceSnippetLen),
			Page:       r.Chunk.Metadata.Page,
			FormFields: r.Chunk.Metadata.FormFields,
			Similarity: math.Round(r.Similarity*1000) / 1000,
		}
	}
	return sources
}

// planTokens splits a plan into word-level fragments for streaming.
// Whitespace stays attached so concatenation reproduces the plan exactly.
func planTokens(plan string) []string {
	var tokens []string
	start := 0
	for i := 0; i < len(plan); i++ {
		if plan[i] == ' ' || plan[i] == '\n' {
			tokens = append(tokens, plan[start:i+1])
			start = i + 1
		}
	}
	if start < len(plan) {
		tokens = append(tokens, plan[start:])
	}
	return tokens
}

// extractJSON trims markdown code fences some models wrap around JSON.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
