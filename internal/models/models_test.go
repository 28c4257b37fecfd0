package models

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestMessage_UnmarshalYAML_Scalar(t *testing.T) {
	var msg Message
	if err := yaml.Unmarshal([]byte(`"Привет! Это начало квеста"`), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != string(MessageText) {
		t.Errorf("expected text kind, got %q", msg.Kind)
	}
	if msg.Text != "Привет! Это начало квеста" {
		t.Errorf("unexpected text: %q", msg.Text)
	}
}

func TestMessage_UnmarshalYAML_Mapping(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "text with markup",
			in:   "type: text\ntext: hello\nmarkup: [\"Идем дальше\"]",
			want: Message{Kind: "text", Text: "hello", Markup: []string{"Идем дальше"}},
		},
		{
			name: "photo with nested caption",
			in:   "type: photo\nfile_id: abc123\nextra:\n  caption: подпись",
			want: Message{Kind: "photo", FileID: "abc123", Caption: "подпись"},
		},
		{
			name: "location",
			in:   "type: location\nlat: 59.94\nlng: 30.25",
			want: Message{Kind: "location", Lat: 59.94, Lng: 30.25},
		},
		{
			name: "document with top-level caption",
			in:   "type: document\nfile_id: doc42\ncaption: карта",
			want: Message{Kind: "document", FileID: "doc42", Caption: "карта"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg Message
			if err := yaml.Unmarshal([]byte(tc.in), &msg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Kind != tc.want.Kind || msg.Text != tc.want.Text || msg.FileID != tc.want.FileID ||
				msg.Caption != tc.want.Caption || msg.Lat != tc.want.Lat || msg.Lng != tc.want.Lng {
				t.Errorf("got %+v, want %+v", msg, tc.want)
			}
			if len(msg.Markup) != len(tc.want.Markup) {
				t.Errorf("markup mismatch: got %v, want %v", msg.Markup, tc.want.Markup)
			}
		})
	}
}

func TestContent_Validate(t *testing.T) {
	valid := Content{
		Success: []string{"Верно!"},
		Stages: []Stage{
			{Name: "intro", Messages: []Message{PlainText("hi")}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid content rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(c *Content)
		wantSub string
	}{
		{"no stages", func(c *Content) { c.Stages = nil }, "no stages"},
		{"no success", func(c *Content) { c.Success = nil }, "no success"},
		{"missing name", func(c *Content) { c.Stages[0].Name = "" }, "no name specified for stage 0"},
		{"missing messages", func(c *Content) { c.Stages[0].Messages = nil }, "no messages specified"},
		{"bad condition type", func(c *Content) {
			c.Stages[0].Condition = &Condition{Type: "fuzzy", Values: []string{"x"}}
		}, "invalid condition"},
		{"empty condition values", func(c *Content) {
			c.Stages[0].Condition = &Condition{Type: ConditionContainsAny}
		}, "invalid condition"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Content{
				Success: []string{"Верно!"},
				Stages: []Stage{
					{Name: "intro", Messages: []Message{PlainText("hi")}},
				},
			}
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestContent_EmptyMessagesListIsValid(t *testing.T) {
	// An empty messages list is allowed; only absence is a load error.
	c := Content{
		Success: []string{"ok"},
		Stages:  []Stage{{Name: "quiet", Messages: []Message{}}},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("empty messages list rejected: %v", err)
	}
}

func TestContent_ClampStage(t *testing.T) {
	c := Content{Stages: make([]Stage, 3)}
	cases := []struct{ in, want int }{
		{-1, 0}, {0, 0}, {2, 2}, {3, 2}, {99, 2},
	}
	for _, tc := range cases {
		if got := c.ClampStage(tc.in); got != tc.want {
			t.Errorf("ClampStage(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSession_IsEmpty(t *testing.T) {
	var nilSession *Session
	if !nilSession.IsEmpty() {
		t.Error("nil session should be empty")
	}
	if !(&Session{}).IsEmpty() {
		t.Error("zero session should be empty")
	}
	if (&Session{Stage: 1}).IsEmpty() {
		t.Error("session with stage should not be empty")
	}
	if NewSession().IsEmpty() {
		t.Error("factory session carries startedAt and should not be empty")
	}
}

func TestSession_JSONRoundTrip(t *testing.T) {
	orig := &Session{
		Stage:       4,
		SkipCounter: 2,
		TryCounter:  7,
		Feedback:    []string{"отличный квест", "ещё бы подсказок"},
		StartedAt:   "2022-10-01T10:00:00Z",
	}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got Session
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Stage != orig.Stage || got.SkipCounter != orig.SkipCounter ||
		got.TryCounter != orig.TryCounter || got.StartedAt != orig.StartedAt {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, *orig)
	}
	if len(got.Feedback) != 2 || got.Feedback[0] != orig.Feedback[0] {
		t.Errorf("feedback mismatch: %v", got.Feedback)
	}
}
