package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/schemas"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// questionPayload is the element shape requested from the model.
type questionPayload struct {
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
}

// Questions decodes the JSON array held by a raw `<json_output>` block. Every
// element is schema-checked and decoded on its own, so one bad element only
// costs that element. An array that cannot be decoded at all is reported as a
// single block-level defect.
func Questions(b *tagged.Block) ([]types.GeneratedQuestion, []defect.Defect) {
	payload := StripCodeFence(b.Text())

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &elements); err != nil {
		return nil, []defect.Defect{
			defect.New(defect.KindNormalize, defect.CodeMalformedJSON, b.Name, fmt.Sprintf("expected a JSON array: %v", err)),
		}
	}

	var (
		out     []types.GeneratedQuestion
		defects []defect.Defect
	)
	for i, raw := range elements {
		if err := schemas.Validate(schemas.Question, raw); err != nil {
			msg := err.Error()
			if ve, ok := err.(*schemas.ValidationError); ok {
				msg = ve.Summary()
			}
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeSchemaMismatch, i, "question", msg))
			continue
		}

		var p questionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeMalformedJSON, i, "question", err.Error()))
			continue
		}

		stem := strings.TrimSpace(p.Question)
		correct, err := answerIndex(p.CorrectAnswer)
		if err != nil {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeMalformedJSON, i, stem, err.Error()))
			continue
		}

		options := make([]string, len(p.Options))
		for j, o := range p.Options {
			options[j] = strings.TrimSpace(o)
		}
		out = append(out, types.GeneratedQuestion{Stem: stem, Options: options, CorrectOption: correct})
	}
	return out, defects
}

// answerIndex accepts the correct answer as a JSON integer or a numeric string.
func answerIndex(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("correctAnswer must be an index: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("correctAnswer %q is not an index", s)
	}
	return n, nil
}

// StripCodeFence removes markdown code block wrappers from a JSON payload.
// Models often wrap JSON in ```json ... ``` blocks even when instructed not to.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Skip a language identifier on the first line.
	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := text[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.ContainsAny(firstLine, "[{") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
