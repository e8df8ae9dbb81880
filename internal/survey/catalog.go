package survey

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultHobbies are the activity interests offered by the hobbies step.
var DefaultHobbies = []string{"Reading", "Gaming", "Coding", "Work out", "Music", "Art"}

// DefaultTraitPairs are the characteristics offered by the last step.
var DefaultTraitPairs = []TraitPair{
	{Left: "Introvert", Right: "Extrovert"},
	{Left: "Detail-oriented", Right: "Big-picture thinker"},
	{Left: "Team player", Right: "Independent worker"},
	{Left: "Planner", Right: "Spontaneous"},
	{Left: "Early bird", Right: "Night owl"},
	{Left: "Talker", Right: "Listener"},
}

// TimeSlots returns the hourly slots 07:00 through 24:00.
func TimeSlots() []string {
	slots := make([]string, 0, 18)
	for h := 7; h < 25; h++ {
		slots = append(slots, fmt.Sprintf("%02d:00", h))
	}
	return slots
}

// DefaultQuestions returns the standard registration survey.
func DefaultQuestions() []Question {
	return []Question{
		Intro{Text: "Welcome to lyf circle. Do you agree to share your answers with other members?"},
		Credentials{Text: "Choose a username and password."},
		Text{Text: "What should people call you?", Field: FieldNickname},
		LanguageSelection{Text: "Which languages do you speak?"},
		Text{Text: "Where are you from?", Field: FieldCountry},
		MultipleChoice{Text: "Which activities interest you?", Options: append([]string{}, DefaultHobbies...)},
		TimeSelection{Text: "When are you usually free?", Slots: TimeSlots()},
		CharacteristicsPairs{Text: "Which describes you best?", Pairs: append([]TraitPair{}, DefaultTraitPairs...)},
	}
}

// ValidateCatalog checks that a question list can drive a wizard.
func ValidateCatalog(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("survey: catalog is empty")
	}
	for i, q := range questions {
		switch q := q.(type) {
		case Intro, Credentials, LanguageSelection:
		case Text:
			if q.Field != FieldNickname && q.Field != FieldCountry {
				return fmt.Errorf("survey: question %d: unknown text field %q", i, q.Field)
			}
		case MultipleChoice:
			if len(q.Options) == 0 {
				return fmt.Errorf("survey: question %d: no options", i)
			}
		case TimeSelection:
			if len(q.Slots) == 0 {
				return fmt.Errorf("survey: question %d: no time slots", i)
			}
		case CharacteristicsPairs:
			if len(q.Pairs) == 0 {
				return fmt.Errorf("survey: question %d: no trait pairs", i)
			}
			seen := make(map[string]bool)
			for _, p := range q.Pairs {
				if p.Left == "" || p.Right == "" || p.Left == p.Right || seen[p.Left] || seen[p.Right] {
					return fmt.Errorf("survey: question %d: invalid trait pair %q/%q", i, p.Left, p.Right)
				}
				seen[p.Left], seen[p.Right] = true, true
			}
		default:
			return fmt.Errorf("survey: question %d: unsupported type %T", i, q)
		}
	}
	return nil
}

// WithCountryChoices returns a copy of questions where every country step
// only accepts one of codes. An empty list leaves the steps as free text.
func WithCountryChoices(questions []Question, codes []string) []Question {
	out := append([]Question{}, questions...)
	if len(codes) == 0 {
		return out
	}
	for i, q := range out {
		if t, ok := q.(Text); ok && t.Field == FieldCountry {
			t.Choices = append([]string{}, codes...)
			out[i] = t
		}
	}
	return out
}

// WithLanguageSuggestions returns a copy of questions where every language
// step lists langs as suggestions.
func WithLanguageSuggestions(questions []Question, langs []string) []Question {
	out := append([]Question{}, questions...)
	for i, q := range out {
		if l, ok := q.(LanguageSelection); ok {
			l.Suggestions = append([]string{}, langs...)
			out[i] = l
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// YAML catalog
// ---------------------------------------------------------------------------

type catalogFile struct {
	Questions []questionEntry `yaml:"questions"`
}

type questionEntry struct {
	Type    Kind        `yaml:"type"`
	Prompt  string      `yaml:"prompt"`
	Field   TextField   `yaml:"field"`
	Options []string    `yaml:"options"`
	Pairs   []TraitPair `yaml:"pairs"`
}

// LoadCatalog reads a question catalog from a YAML file.
func LoadCatalog(path string) ([]Question, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("survey: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML question catalog.
func ParseCatalog(data []byte) ([]Question, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("survey: parse catalog: %w", err)
	}

	questions := make([]Question, 0, len(file.Questions))
	for i, e := range file.Questions {
		var q Question
		switch e.Type {
		case KindIntro:
			q = Intro{Text: e.Prompt}
		case KindCredentials:
			q = Credentials{Text: e.Prompt}
		case KindText:
			q = Text{Text: e.Prompt, Field: e.Field, Choices: e.Options}
		case KindLanguageSelection:
			q = LanguageSelection{Text: e.Prompt, Suggestions: e.Options}
		case KindMultipleChoice:
			q = MultipleChoice{Text: e.Prompt, Options: e.Options}
		case KindTimeSelection:
			slots := e.Options
			if len(slots) == 0 {
				slots = TimeSlots()
			}
			q = TimeSelection{Text: e.Prompt, Slots: slots}
		case KindCharacteristicsPairs:
			q = CharacteristicsPairs{Text: e.Prompt, Pairs: e.Pairs}
		default:
			return nil, fmt.Errorf("survey: catalog entry %d: unknown type %q", i, e.Type)
		}
		questions = append(questions, q)
	}

	if err := ValidateCatalog(questions); err != nil {
		return nil, err
	}
	return questions, nil
}
