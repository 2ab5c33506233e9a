package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
)

const (
	noMatch       = "none"
	maxCandidates = 300
)

// DesignationMatcher asks an LLM to map a free-text job title onto one of the
// known designation names.
type DesignationMatcher struct {
	provider LLMProvider
	tmpl     *template.Template
	logger   *slog.Logger
}

// NewDesignationMatcher creates a matcher rendering prompts with tmpl.
func NewDesignationMatcher(provider LLMProvider, tmpl *template.Template, logger *slog.Logger) *DesignationMatcher {
	return &DesignationMatcher{
		provider: provider,
		tmpl:     tmpl,
		logger:   logger,
	}
}

// Match returns the chosen candidate, or "" when the model finds no fit.
// The answer is always one of candidates.
func (m *DesignationMatcher) Match(ctx context.Context, title string, candidates []string) (string, error) {
	if strings.TrimSpace(title) == "" || len(candidates) == 0 {
		return "", nil
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	var prompt bytes.Buffer
	if err := m.tmpl.Execute(&prompt, struct {
		Title      string
		Candidates []string
	}{Title: title, Candidates: candidates}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	raw, err := m.provider.Complete(ctx, Completion{
		System:     "You classify job titles into a fixed taxonomy of designations.",
		Prompt:     prompt.String(),
		SchemaName: "designation_match",
		Schema:     designationSchema(candidates),
	})
	if err != nil {
		return "", fmt.Errorf("llm complete: %w", err)
	}

	var reply struct {
		Designation string `json:"designation"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return "", fmt.Errorf("unmarshal designation reply: %w", err)
	}

	if reply.Designation == noMatch {
		return "", nil
	}
	for _, c := range candidates {
		if c == reply.Designation {
			return c, nil
		}
	}
	if m.logger != nil {
		m.logger.Warn("llm answered outside the candidate list", "title", title, "answer", reply.Designation)
	}
	return "", nil
}

func designationSchema(candidates []string) map[string]any {
	enum := append(append([]string{}, candidates...), noMatch)
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"designation": map[string]any{"type": "string", "enum": enum},
		},
		"required": []string{"designation"},
	}
}
