// Package templates renders the role prompts from embedded markdown templates.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// StateTemplate names one embedded prompt template.
type StateTemplate string

const (
	// ManagerTemplate is the routing prompt of the manager step.
	ManagerTemplate StateTemplate = "manager.tpl.md"
	// PlannerTemplate is the system prompt of the planner step.
	PlannerTemplate StateTemplate = "planner.tpl.md"
	// ProgrammerTemplate is the system prompt of the programmer step.
	ProgrammerTemplate StateTemplate = "programmer.tpl.md"
)

// requestPreviewLen caps how much of the request the manager prompt repeats.
const requestPreviewLen = 100

// TemplateData holds the data for template rendering.
type TemplateData struct {
	Request string `json:"request"`
	Plan    string `json:"plan,omitempty"`
	Status  string `json:"status,omitempty"`
	HasPlan bool   `json:"has_plan"`
	HasCode bool   `json:"has_code"`
}

// Renderer handles template rendering for the workflow steps.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	templateNames := []StateTemplate{
		ManagerTemplate,
		PlannerTemplate,
		ProgrammerTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}
	if data == nil {
		data = &TemplateData{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// GetAvailableTemplates returns the loaded template names in sorted order.
func (r *Renderer) GetAvailableTemplates() []StateTemplate {
	names := make([]StateTemplate, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// PreviewRequest shortens a request to the first 100 characters (runes).
func PreviewRequest(request string) string {
	runes := []rune(request)
	if len(runes) <= requestPreviewLen {
		return request
	}
	return string(runes[:requestPreviewLen])
}
