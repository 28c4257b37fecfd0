package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ingria/excursbot/internal/models"
)

const sampleScript = `
get_going_text: "Нажми 'Идем дальше', когда будешь готов"
wrong_answer_text: "Это неправильный ответ. Возможности пропустить больше нет"
try_again_text: "Можешь попытаться ещё раз. Осталось пропусков: "
success:
  - "Верно!"
  - "Правильно"
stages:
  - name: intro
    messages:
      - "Привет! Это начало квеста"
      - type: location
        lat: 59.9477
        lng: 30.2561
  - name: first-question
    condition:
      type: containsAny
      values: ["гесс"]
    messages:
      - "Интересный факт про архитектора"
    markup: ["Идем дальше"]
  - name: feedback
    messages:
      - "Спасибо за отзыв!"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleScript))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(c.Stages))
	}
	if c.Stages[0].Messages[1].Kind != string(models.MessageLocation) {
		t.Errorf("expected location descriptor, got %q", c.Stages[0].Messages[1].Kind)
	}
	if c.Stages[1].Condition == nil || c.Stages[1].Condition.Type != models.ConditionContainsAny {
		t.Errorf("condition not parsed: %+v", c.Stages[1].Condition)
	}
	if len(c.Success) != 2 {
		t.Errorf("expected 2 success variants, got %d", len(c.Success))
	}
}

func TestParse_NormalizesLegacyFeedbackStage(t *testing.T) {
	c, err := Parse([]byte(sampleScript))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Stages[2].Kind != models.StageKindFeedback {
		t.Errorf("stage named feedback should be tagged as feedback kind, got %q", c.Stages[2].Kind)
	}
	if c.Stages[0].Kind != models.StageKindDefault {
		t.Errorf("intro stage should stay default kind, got %q", c.Stages[0].Kind)
	}
}

func TestParse_InvalidScript(t *testing.T) {
	cases := []struct {
		name    string
		script  string
		wantSub string
	}{
		{
			name:    "missing stage name",
			script:  "success: [ok]\nstages:\n  - messages: [hi]\n",
			wantSub: "no name specified for stage 0",
		},
		{
			name:    "missing messages",
			script:  "success: [ok]\nstages:\n  - name: intro\n",
			wantSub: "no messages specified",
		},
		{
			name:    "not yaml",
			script:  "{{{",
			wantSub: "failed to parse",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.script))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.yaml")
	if err := os.WriteFile(path, []byte(sampleScript), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Stages) != 3 {
		t.Errorf("expected 3 stages, got %d", len(c.Stages))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing content script")
	}
}
