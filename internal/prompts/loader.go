// Package prompts renders the embedded model prompt templates. Each JSON file
// maps a key to a text/template body; placeholders are {{.Name}} fields.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
)

//go:embed *.json
var promptFiles embed.FS

// Extraction is the prompt file holding one template per pipeline.
const Extraction = "extraction.json"

// Template keys in Extraction.
const (
	KeySuggestions     = "suggestions"
	KeyStudyPlan       = "study-plan"
	KeyTopicClustering = "topic-clustering"
	KeyDifficulty      = "difficulty"
	KeyQuestionSet     = "question-set"
)

type promptFile struct {
	raw       map[string]string
	templates map[string]*template.Template
}

var (
	mu     sync.Mutex
	loaded = make(map[string]*promptFile)
)

// Get returns the unrendered template text for key.
func Get(filename, key string) (string, error) {
	f, err := load(filename)
	if err != nil {
		return "", err
	}
	text, ok := f.raw[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return text, nil
}

// MustGet is Get for prompts required at start-up.
func MustGet(filename, key string) string {
	text, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return text
}

// Render fills the template with data. A placeholder missing from data is an
// error. Values are inserted verbatim and never re-parsed as template text.
func Render(filename, key string, data map[string]string) (string, error) {
	f, err := load(filename)
	if err != nil {
		return "", err
	}
	tmpl, ok := f.templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompt %s/%s: %w", filename, key, err)
	}
	return sb.String(), nil
}

// Keys lists the template keys of a file in sorted order.
func Keys(filename string) ([]string, error) {
	f, err := load(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.raw))
	for key := range f.raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// load parses a prompt file and its templates once.
func load(filename string) (*promptFile, error) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := loaded[filename]; ok {
		return f, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	f := &promptFile{templates: make(map[string]*template.Template)}
	if err := json.Unmarshal(data, &f.raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}
	for key, text := range f.raw {
		tmpl, err := template.New(filename + "/" + key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %s/%s: %w", filename, key, err)
		}
		f.templates[key] = tmpl
	}

	loaded[filename] = f
	return f, nil
}
