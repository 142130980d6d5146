package extractor

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
)

//go:embed prompts/system_prompt.txt
var defaultSystemPrompt string

//go:embed prompts/user_prompt_template.txt
var defaultUserPrompt string

// SourceBuiltin marks a prompt that came from the embedded defaults.
const SourceBuiltin = "builtin"

// Prompts is the active prompt pair.
type Prompts struct {
	System       string `json:"system_prompt"`
	UserTemplate string `json:"user_prompt_template"`
	// SystemSource and UserSource name the file each prompt was read from,
	// or SourceBuiltin.
	SystemSource string `json:"system_source"`
	UserSource   string `json:"user_source"`
}

// promptSet is a loaded, parsed prompt pair.
type promptSet struct {
	Prompts
	user *template.Template
}

type promptData struct {
	Content string
	Sender  string
	Subject string
	Date    string
}

var placeholderReplacer = strings.NewReplacer(
	"{email_content}", "{{.Content}}",
	"{sender}", "{{.Sender}}",
	"{subject}", "{{.Subject}}",
	"{date}", "{{.Date}}",
)

// loadPrompts reads both prompt files, falling back to the embedded defaults
// for files that do not exist. An unreadable file or an invalid template is
// an error.
func loadPrompts(systemPath, userPath string) (*promptSet, []string, error) {
	var warnings []string

	system, systemSource, err := readPrompt(systemPath, defaultSystemPrompt)
	if err != nil {
		return nil, nil, err
	}
	if systemSource == SourceBuiltin && systemPath != "" {
		warnings = append(warnings, fmt.Sprintf("system prompt file %s not found, using built-in prompt", systemPath))
	}

	user, userSource, err := readPrompt(userPath, defaultUserPrompt)
	if err != nil {
		return nil, nil, err
	}
	if userSource == SourceBuiltin && userPath != "" {
		warnings = append(warnings, fmt.Sprintf("user prompt file %s not found, using built-in template", userPath))
	}

	tmpl, err := parseUserTemplate(user)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid user prompt template %s: %w", userSource, err)
	}
	if strings.TrimSpace(system) == "" {
		return nil, nil, fmt.Errorf("system prompt %s is empty", systemSource)
	}

	return &promptSet{
		Prompts: Prompts{
			System:       system,
			UserTemplate: user,
			SystemSource: systemSource,
			UserSource:   userSource,
		},
		user: tmpl,
	}, warnings, nil
}

func readPrompt(path, fallback string) (string, string, error) {
	if path == "" {
		return strings.TrimSpace(fallback), SourceBuiltin, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return strings.TrimSpace(fallback), SourceBuiltin, nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read prompt %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), path, nil
}

func parseUserTemplate(text string) (*template.Template, error) {
	if !strings.Contains(text, "{{") {
		text = placeholderReplacer.Replace(text)
	}
	return template.New("user").Option("missingkey=error").Parse(text)
}

func (p *promptSet) renderUser(data promptData) (string, error) {
	var b strings.Builder
	if err := p.user.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render user prompt: %w", err)
	}
	return b.String(), nil
}
