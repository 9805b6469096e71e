package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"clubhub/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

var questionTypes = map[string]bool{
	"text":     true,
	"textarea": true,
	"select":   true,
	"radio":    true,
	"checkbox": true,
	"email":    true,
	"tel":      true,
	"number":   true,
}

// DefaultFormQuestions is the question set of a freshly created form.
func DefaultFormQuestions() []models.FormQuestion {
	return []models.FormQuestion{
		{
			ID: 1, Type: "textarea", Label: "Motivation", Required: true,
			Placeholder: "Why do you want to join the club?",
			Validation:  map[string]any{"minLength": 10, "message": "Please write at least 10 characters"},
		},
		{
			ID: 2, Type: "textarea", Label: "Music experience",
			Placeholder: "Instruments played, bands, performances.",
		},
		{
			ID: 3, Type: "select", Label: "Main instrument",
			Options: []models.FormQuestionOption{
				{Value: "guitar", Label: "Guitar"},
				{Value: "bass", Label: "Bass"},
				{Value: "drums", Label: "Drums"},
				{Value: "keyboard", Label: "Keyboard"},
				{Value: "vocal", Label: "Vocal"},
				{Value: "other", Label: "Other"},
			},
		},
	}
}

// ValidateQuestions checks ids, types, labels and select options.
func ValidateQuestions(questions []models.FormQuestion) error {
	seen := make(map[int]bool, len(questions))
	for i, q := range questions {
		if q.ID <= 0 {
			return fmt.Errorf("question %d: id must be positive", i+1)
		}
		if seen[q.ID] {
			return fmt.Errorf("question %d: duplicate id %d", i+1, q.ID)
		}
		seen[q.ID] = true
		if !questionTypes[q.Type] {
			return fmt.Errorf("question %d: unsupported type %q", q.ID, q.Type)
		}
		if strings.TrimSpace(q.Label) == "" {
			return fmt.Errorf("question %d: label is required", q.ID)
		}
		needsOptions := q.Type == "select" || q.Type == "radio" || q.Type == "checkbox"
		if needsOptions && len(q.Options) == 0 {
			return fmt.Errorf("question %d: %s questions need options", q.ID, q.Type)
		}
	}
	return nil
}

// ParseQuestionsYAML reads a question list from YAML, either a bare sequence
// or a mapping with a "questions" key.
func ParseQuestionsYAML(data []byte) ([]models.FormQuestion, error) {
	var wrapped struct {
		Questions []models.FormQuestion `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Questions) > 0 {
		return wrapped.Questions, ValidateQuestions(wrapped.Questions)
	}

	var questions []models.FormQuestion
	if err := yaml.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	return questions, ValidateQuestions(questions)
}

func encodeQuestions(questions []models.FormQuestion) (datatypes.JSON, error) {
	if questions == nil {
		questions = []models.FormQuestion{}
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// decodeQuestions yields an empty list for a missing or unreadable question blob.
func decodeQuestions(raw datatypes.JSON) []models.FormQuestion {
	questions := []models.FormQuestion{}
	if len(raw) == 0 {
		return questions
	}
	if err := json.Unmarshal(raw, &questions); err != nil {
		return []models.FormQuestion{}
	}
	return questions
}
