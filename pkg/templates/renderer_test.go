package templates

import (
	"strings"
	"testing"
)

func TestNewRenderer(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	got := renderer.GetAvailableTemplates()
	want := []StateTemplate{ManagerTemplate, PlannerTemplate, ProgrammerTemplate}
	if len(got) != len(want) {
		t.Fatalf("Expected %d templates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Template %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRenderManagerTemplate(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	out, err := renderer.Render(ManagerTemplate, &TemplateData{
		Request: "Build a todo CLI",
		HasPlan: true,
		HasCode: false,
		Status:  "planning",
	})
	if err != nil {
		t.Fatalf("Failed to render manager template: %v", err)
	}

	for _, expected := range []string{
		"- Request: Build a todo CLI",
		"- Plan exists: true",
		"- Code changes made: false",
		"- Status: planning",
		`"planner", "programmer", or "complete"`,
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("Expected manager prompt to contain %q", expected)
		}
	}
}

func TestRenderProgrammerTemplate(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	out, err := renderer.Render(ProgrammerTemplate, &TemplateData{Plan: "1. write main.py"})
	if err != nil {
		t.Fatalf("Failed to render programmer template: %v", err)
	}

	for _, expected := range []string{
		"1. write main.py",
		"```json",
		`"folder_name"`,
		`"file_path"`,
		`"file_content"`,
		"Make sure to include a requirements.txt file or equivalent!",
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("Expected programmer prompt to contain %q", expected)
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	if _, err := renderer.Render("missing.tpl.md", nil); err == nil {
		t.Error("Expected error for unknown template")
	}
}

func TestPreviewRequest(t *testing.T) {
	short := "short request"
	if got := PreviewRequest(short); got != short {
		t.Errorf("Expected %q unchanged, got %q", short, got)
	}

	long := strings.Repeat("é", 150)
	got := PreviewRequest(long)
	if n := len([]rune(got)); n != 100 {
		t.Errorf("Expected 100 runes, got %d", n)
	}
}
