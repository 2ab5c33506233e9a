package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/designation_match.md
var designationMatchPromptRaw string

// DesignationMatchTemplate is the prompt used to map a job title onto a known
// designation. Parsed once at package init.
var DesignationMatchTemplate = template.Must(template.New("designation_match").Parse(designationMatchPromptRaw))
