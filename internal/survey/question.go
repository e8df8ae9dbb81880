// Package survey implements the registration wizard: an ordered list of
// typed question steps, the answers they accumulate, and the forward/backward
// state machine that ends in a single submission.
package survey

import "strings"

// Kind names a question variant. It is used for configuration files and
// logging; behaviour always switches on the concrete Go type.
type Kind string

const (
	KindIntro                Kind = "intro"
	KindCredentials          Kind = "credentials"
	KindText                 Kind = "text"
	KindMultipleChoice       Kind = "multipleChoice"
	KindTimeSelection        Kind = "timeSelection"
	KindLanguageSelection    Kind = "languageSelection"
	KindCharacteristicsPairs Kind = "characteristicsPairs"
)

// Question is one wizard step. The set of implementations is closed; see
// CanAdvance for the exhaustive dispatch.
type Question interface {
	Kind() Kind
	Prompt() string
	question()
}

// Intro asks for consent before anything else.
type Intro struct {
	Text string
}

// Credentials collects username and password.
type Credentials struct {
	Text string
}

// TextField names the FormData field a Text step writes to.
type TextField string

const (
	FieldNickname TextField = "nickname"
	FieldCountry  TextField = "country"
)

// Text collects one free-text answer. When Choices is non-empty the answer
// must match one of them, ignoring case.
type Text struct {
	Text    string
	Field   TextField
	Choices []string
}

// LanguageSelection collects an ordered list of spoken languages.
type LanguageSelection struct {
	Text        string
	Suggestions []string
}

// MultipleChoice collects hobbies from a fixed option list.
type MultipleChoice struct {
	Text    string
	Options []string
}

// TimeSelection collects available time slots.
type TimeSelection struct {
	Text  string
	Slots []string
}

// TraitPair is a mutually exclusive pair of characteristics.
type TraitPair struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// Opposite returns the other side of the pair and whether v belongs to it.
func (p TraitPair) Opposite(v string) (string, bool) {
	switch v {
	case p.Left:
		return p.Right, true
	case p.Right:
		return p.Left, true
	}
	return "", false
}

// CharacteristicsPairs asks for exactly one side of every pair.
type CharacteristicsPairs struct {
	Text  string
	Pairs []TraitPair
}

func (Intro) Kind() Kind                { return KindIntro }
func (Credentials) Kind() Kind          { return KindCredentials }
func (Text) Kind() Kind                 { return KindText }
func (LanguageSelection) Kind() Kind    { return KindLanguageSelection }
func (MultipleChoice) Kind() Kind       { return KindMultipleChoice }
func (TimeSelection) Kind() Kind        { return KindTimeSelection }
func (CharacteristicsPairs) Kind() Kind { return KindCharacteristicsPairs }

func (q Intro) Prompt() string                { return q.Text }
func (q Credentials) Prompt() string          { return q.Text }
func (q Text) Prompt() string                 { return q.Text }
func (q LanguageSelection) Prompt() string    { return q.Text }
func (q MultipleChoice) Prompt() string       { return q.Text }
func (q TimeSelection) Prompt() string        { return q.Text }
func (q CharacteristicsPairs) Prompt() string { return q.Text }

func (Intro) question()                {}
func (Credentials) question()          {}
func (Text) question()                 {}
func (LanguageSelection) question()    {}
func (MultipleChoice) question()       {}
func (TimeSelection) question()        {}
func (CharacteristicsPairs) question() {}

// CanAdvance reports whether the Next action is enabled for q given the
// current answers and consent flag. It is a pure function of its inputs.
func CanAdvance(q Question, f FormData, consent bool) bool {
	switch q := q.(type) {
	case Intro:
		return consent
	case Credentials:
		return notBlank(f.Username) && notBlank(f.Password)
	case Text:
		v := f.text(q.Field)
		if !notBlank(v) {
			return false
		}
		if len(q.Choices) == 0 {
			return true
		}
		_, ok := matchChoice(q.Choices, v)
		return ok
	case LanguageSelection:
		return len(f.Langs) > 0
	case MultipleChoice:
		return len(f.Hobbies) > 0
	case TimeSelection:
		return len(f.Times) > 0
	case CharacteristicsPairs:
		return len(f.Characteristics) == len(q.Pairs)
	default:
		return false
	}
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

// matchChoice returns the canonical spelling of v from choices.
func matchChoice(choices []string, v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, c := range choices {
		if strings.EqualFold(c, v) {
			return c, true
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
