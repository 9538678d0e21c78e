package events

import (
	"errors"

	"github.com/go-openapi/strfmt"
)

// Payload is implemented by every event payload in the system.
type Payload interface {
	// Subject returns the canonical subject this payload is published on.
	Subject() string

	// Validate reports whether the payload satisfies its schema. It is
	// called once, at the bus boundary, by Decode and Marshal.
	Validate() error
}

// InputReceived is the originating event of the pipeline. It is the only
// payload that mints an input_id instead of carrying one forward.
type InputReceived struct {
	UserInput string          `json:"user_input"`
	InputID   string          `json:"input_id"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (InputReceived) Subject() string { return SubjectInputReceived }

func (p InputReceived) Validate() error {
	if p.InputID == "" {
		return errors.New("input_id is required")
	}
	if p.UserInput == "" {
		return errors.New("user_input is required")
	}
	return nil
}

// RetrievedKnowledge is the context a memory agent hands to an LLM agent.
type RetrievedKnowledge struct {
	Facts  []string `json:"facts"`
	Source string   `json:"source"`
}

// MemoryRetrieved is published by a memory agent after answering a
// retrieve-context query for an input event.
type MemoryRetrieved struct {
	Knowledge RetrievedKnowledge `json:"retrieved_knowledge"`
	InputID   string             `json:"input_id"`
	Timestamp strfmt.DateTime    `json:"timestamp"`
}

func (MemoryRetrieved) Subject() string { return SubjectMemoryRetrieved }

func (p MemoryRetrieved) Validate() error {
	if p.InputID == "" {
		return errors.New("input_id is required")
	}
	if p.Knowledge.Facts == nil {
		return errors.New("retrieved_knowledge.facts is required")
	}
	return nil
}

// ResponseGenerated is published by an LLM agent once inference completes.
type ResponseGenerated struct {
	FinalResponse string          `json:"final_response"`
	InputID       string          `json:"input_id"`
	Timestamp     strfmt.DateTime `json:"timestamp"`
	Confidence    float64         `json:"confidence,omitempty"`
}

func (ResponseGenerated) Subject() string { return SubjectResponseGenerated }

func (p ResponseGenerated) Validate() error {
	if p.InputID == "" {
		return errors.New("input_id is required")
	}
	if p.FinalResponse == "" {
		return errors.New("final_response is required")
	}
	return nil
}

// ReminderTriggered is published by the scheduler for every reminder whose
// due time has passed. Each due reminder produces exactly one event.
type ReminderTriggered struct {
	Message    string          `json:"message"`
	ReminderID string          `json:"reminder_id"`
	Timestamp  strfmt.DateTime `json:"timestamp"`
}

func (ReminderTriggered) Subject() string { return SubjectReminderTriggered }

func (p ReminderTriggered) Validate() error {
	if p.ReminderID == "" {
		return errors.New("reminder_id is required")
	}
	return nil
}

// RewardRecorded is the ledger entry the reward agent publishes after
// scoring a bot message.
type RewardRecorded struct {
	Prompt    string          `json:"prompt"`
	Response  string          `json:"response"`
	Reward    float64         `json:"reward"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (RewardRecorded) Subject() string { return SubjectRewardRecorded }

func (p RewardRecorded) Validate() error {
	if p.Response == "" {
		return errors.New("response is required")
	}
	return nil
}

// ChatMessage is the raw chat ingestion payload. It originates outside the
// pipeline, so the field set is looser than the evt payloads: Content is
// the only required field.
type ChatMessage struct {
	Prompt    string          `json:"prompt,omitempty"`
	Content   string          `json:"content"`
	ChannelID int64           `json:"channel_id,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (ChatMessage) Subject() string { return SubjectChatBot }

func (p ChatMessage) Validate() error {
	if p.Content == "" {
		return errors.New("content is required")
	}
	return nil
}
