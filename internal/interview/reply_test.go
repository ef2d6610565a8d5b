package interview

import (
	"strings"
	"testing"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/llm"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantText string
		wantCode string
	}{
		{name: "text and null code", content: `{"text":"Tell me about yourself","code":null}`, wantText: "Tell me about yourself"},
		{name: "text and code", content: `{"text":"Implement it","code":"func f() {}"}`, wantText: "Implement it", wantCode: "func f() {}"},
		{name: "string null code", content: `{"text":"Hi","code":"null"}`, wantText: "Hi"},
		{name: "numeric code", content: `{"text":"Hi","code":42}`, wantText: "Hi"},
		{name: "missing code", content: `{"text":"Hi"}`, wantText: "Hi"},
		{name: "fenced json", content: "```json\n{\"text\":\"Fenced\",\"code\":null}\n```", wantText: "Fenced"},
		{name: "plain text", content: "Hello, welcome to the interview", wantText: "Hello, welcome to the interview"},
		{name: "missing text", content: `{"code":"x"}`, wantText: `{"code":"x"}`},
		{name: "wrong shape", content: `["a","b"]`, wantText: `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReply(tt.content)
			if got.Speaker != conversation.Interviewer {
				t.Fatalf("expected interviewer turn, got %q", got.Speaker)
			}
			if got.Text != tt.wantText {
				t.Fatalf("text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestBuildMessages_OpeningRequest(t *testing.T) {
	msgs := BuildMessages(testProfile(), nil)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	system := msgs[0].Content
	for _, want := range []string{"Backend Engineer", "Acme", "DSA", "Medium", "30 minutes", "Friendly Dev", `"text"`} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if !strings.Contains(system, "None specified") {
		t.Errorf("expected placeholder for empty optional fields")
	}
}

func TestBuildMessages_HistoryRoles(t *testing.T) {
	history := []conversation.Turn{
		{Speaker: conversation.Interviewer, Text: "Q1"},
		{Speaker: conversation.Candidate, Text: "A1"},
		{Speaker: conversation.Interviewer, Text: "Q2", Code: "stub"},
	}
	msgs := BuildMessages(testProfile(), history)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	wantRoles := []string{llm.RoleSystem, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Fatalf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, want)
		}
	}
	if msgs[3].Content != "Q2" {
		t.Fatalf("interviewer code should not be echoed into history: %q", msgs[3].Content)
	}
	if !strings.Contains(msgs[0].Content, "Interviewer: Q1\n\nCandidate: A1") {
		t.Fatalf("system prompt should carry the transcript:\n%s", msgs[0].Content)
	}
	if strings.Contains(msgs[0].Content, "just submitted code") {
		t.Fatal("code review branch should not trigger without a candidate submission")
	}
}

func TestProfileValidate(t *testing.T) {
	if err := testProfile().Validate(); err != nil {
		t.Fatalf("expected valid profile, got %v", err)
	}

	bad := Profile{InterviewType: "Trivia", Difficulty: "Brutal", Persona: "Robot", DurationMinutes: 2}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"job role", "company name", "interview type", "difficulty", "personality", "duration"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}
