package domain

// ChatEventType discriminates the events of one answer stream.
type ChatEventType string

// Event kinds emitted by the answer orchestrator, in stream order.
// A grounded stream is: status* -> highlight? -> answer_token* -> done.
// A general stream is: thinking -> plan_token* -> thinking -> status_update
// -> answer_token* -> done. The highlight and plan phases are the only
// parts that may be skipped.
const (
	EventStatus       ChatEventType = "status"
	EventThinking     ChatEventType = "thinking"
	EventPlanToken    ChatEventType = "plan_token"
	EventStatusUpdate ChatEventType = "status_update"
	EventHighlight    ChatEventType = "highlight"
	EventAnswerToken  ChatEventType = "answer_token"
	EventDone         ChatEventType = "done"
)

// ChatEvent is one element of the ordered stream produced for a question.
// It is a closed tagged union: Type selects which optional fields are set.
type ChatEvent struct {
	Type ChatEventType `json:"type"`

	// SessionID is set on the first event of a stream so the caller can
	// persist it even if the stream is later interrupted.
	SessionID string `json:"session_id,omitempty"`

	// Stage names the pipeline stage for status and status_update events.
	Stage string `json:"stage,omitempty"`

	// Phase is "start" or "end" for thinking events.
	Phase string `json:"phase,omitempty"`

	// Token is the text fragment for plan_token and answer_token events.
	// Concatenating tokens in emission order yields the exact final text.
	Token string `json:"token,omitempty"`

	// Highlight carries the resolved field location for highlight events.
	Highlight *FieldLocation `json:"highlight,omitempty"`

	// Sources are the citations attached to the done event.
	Sources []MessageSource `json:"sources,omitempty"`
}

// Stage names for status events, in emission order for a grounded flow.
const (
	StageReading          = "reading_document"
	StageSelectingSources = "selecting_sources"
	StageLocatingField    = "locating_field"
	StageWriting          = "writing_answer"
)
