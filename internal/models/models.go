// Package models defines the core data structures for excursbot.
//
// It includes the content script schema (stages, conditions, outbound
// message descriptors) and the per-conversation session record, which are
// shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ConditionType defines how a free-text reply is matched against a
// condition's values.
type ConditionType string

const (
	// ConditionContainsAny matches if any value is a case-insensitive
	// substring of the reply.
	ConditionContainsAny ConditionType = "containsAny"
	// ConditionContainsAll matches only if every value is a
	// case-insensitive substring of the reply.
	ConditionContainsAll ConditionType = "containsAll"
)

// IsValidConditionType checks if the given condition type is supported.
func IsValidConditionType(ct ConditionType) bool {
	switch ct {
	case ConditionContainsAny, ConditionContainsAll:
		return true
	default:
		return false
	}
}

// MessageKind identifies the transport call a message descriptor maps to.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessagePhoto    MessageKind = "photo"
	MessageLocation MessageKind = "location"
	MessageDocument MessageKind = "document"
)

// StageKind tags stages that trigger special engine behavior.
type StageKind string

const (
	// StageKindDefault is a regular content stage.
	StageKindDefault StageKind = ""
	// StageKindFeedback marks a stage whose replies are captured as
	// free-text feedback.
	StageKindFeedback StageKind = "feedback"
)

// Error variables for better error handling and testability
var (
	ErrNoStages             = errors.New("content script has no stages")
	ErrNoSuccessMessages    = errors.New("content script has no success messages")
	ErrEmptyConditionValues = errors.New("condition values cannot be empty")
	ErrInvalidConditionType = errors.New("invalid condition type")
)

// Condition is a predicate a free-text reply must satisfy to pass a
// stage's gate.
type Condition struct {
	Type   ConditionType `yaml:"type" json:"type"`
	Values []string      `yaml:"values" json:"values"`
}

// Validate checks that the condition is well formed.
func (c *Condition) Validate() error {
	if !IsValidConditionType(c.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidConditionType, c.Type)
	}
	if len(c.Values) == 0 {
		return ErrEmptyConditionValues
	}
	return nil
}

// Message is one outbound message descriptor. In the content script it is
// either a plain string (simple text) or a mapping with a type tag.
type Message struct {
	Kind    string   `yaml:"type" json:"type"`
	Text    string   `yaml:"text,omitempty" json:"text,omitempty"`
	FileID  string   `yaml:"file_id,omitempty" json:"file_id,omitempty"`
	Caption string   `yaml:"caption,omitempty" json:"caption,omitempty"`
	Lat     float64  `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lng     float64  `yaml:"lng,omitempty" json:"lng,omitempty"`
	Markup  []string `yaml:"markup,omitempty" json:"markup,omitempty"`
}

// messageAlias mirrors Message for mapping-form decoding, including the
// nested extra.caption shape used by photo descriptors.
type messageAlias struct {
	Kind    string   `yaml:"type"`
	Text    string   `yaml:"text"`
	FileID  string   `yaml:"file_id"`
	Caption string   `yaml:"caption"`
	Extra   struct {
		Caption string `yaml:"caption"`
	} `yaml:"extra"`
	Lat    float64  `yaml:"lat"`
	Lng    float64  `yaml:"lng"`
	Markup []string `yaml:"markup"`
}

// UnmarshalYAML decodes either a bare scalar (plain text message) or a
// mapping with a type tag.
func (m *Message) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		m.Kind = string(MessageText)
		m.Text = value.Value
		return nil
	}
	var alias messageAlias
	if err := value.Decode(&alias); err != nil {
		return fmt.Errorf("failed to decode message descriptor: %w", err)
	}
	m.Kind = alias.Kind
	m.Text = alias.Text
	m.FileID = alias.FileID
	m.Caption = alias.Caption
	if m.Caption == "" {
		m.Caption = alias.Extra.Caption
	}
	m.Lat = alias.Lat
	m.Lng = alias.Lng
	m.Markup = alias.Markup
	return nil
}

// PlainText builds a simple text message descriptor.
func PlainText(text string) Message {
	return Message{Kind: string(MessageText), Text: text}
}

// Stage is one step of the scripted conversation: outbound content plus an
// optional reply gate.
type Stage struct {
	Name      string     `yaml:"name" json:"name"`
	Kind      StageKind  `yaml:"kind,omitempty" json:"kind,omitempty"`
	Messages  []Message  `yaml:"messages" json:"messages"`
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Markup    []string   `yaml:"markup,omitempty" json:"markup,omitempty"`
}

// Content is the immutable content script loaded once at startup.
type Content struct {
	GetGoingText    string   `yaml:"get_going_text" json:"get_going_text"`
	WrongAnswerText string   `yaml:"wrong_answer_text" json:"wrong_answer_text"`
	TryAgainText    string   `yaml:"try_again_text" json:"try_again_text"`
	Success         []string `yaml:"success" json:"success"`
	Stages          []Stage  `yaml:"stages" json:"stages"`
}

// Validate performs eager validation of the loaded content script. Any
// failure here is a startup-fatal configuration error.
func (c *Content) Validate() error {
	if len(c.Stages) == 0 {
		return ErrNoStages
	}
	if len(c.Success) == 0 {
		return ErrNoSuccessMessages
	}
	for i, stage := range c.Stages {
		if stage.Name == "" {
			return fmt.Errorf("no name specified for stage %d", i)
		}
		if stage.Messages == nil {
			return fmt.Errorf("no messages specified for stage %q (index %d)", stage.Name, i)
		}
		if stage.Condition != nil {
			if err := stage.Condition.Validate(); err != nil {
				return fmt.Errorf("invalid condition on stage %q (index %d): %w", stage.Name, i, err)
			}
		}
	}
	return nil
}

// LastStage returns the index of the terminal stage.
func (c *Content) LastStage() int {
	return len(c.Stages) - 1
}

// ClampStage clamps a stage index into the valid range [0, len(stages)-1].
func (c *Content) ClampStage(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx > c.LastStage() {
		return c.LastStage()
	}
	return idx
}

// Session is the durable per-conversation progress record. It is owned by
// the session store between requests and mutated in place by the stage
// engine during one request.
type Session struct {
	Stage       int      `json:"stage"`
	SkipCounter int      `json:"skip_counter"`
	TryCounter  int      `json:"try_counter,omitempty"`
	Feedback    []string `json:"feedback,omitempty"`
	StartedAt   string   `json:"startedAt,omitempty"`
}

// NewSession is the initial-value factory for first contact on a
// conversation key.
func NewSession() *Session {
	return &Session{StartedAt: time.Now().UTC().Format(time.RFC3339)}
}

// IsEmpty reports whether the session carries no state worth storing. An
// empty session is indistinguishable from "no session" and persists as a
// deleted record.
func (s *Session) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.Stage == 0 && s.SkipCounter == 0 && s.TryCounter == 0 &&
		len(s.Feedback) == 0 && s.StartedAt == ""
}

// AddFeedback appends raw reply text to the feedback list, creating it if
// absent.
func (s *Session) AddFeedback(text string) {
	s.Feedback = append(s.Feedback, text)
}
