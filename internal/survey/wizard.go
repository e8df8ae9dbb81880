package survey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/metrics"
)

var (
	// ErrCannotAdvance is returned by Next when the current step is incomplete.
	ErrCannotAdvance = errors.New("survey: current step is incomplete")
	// ErrAlreadySubmitted is returned once the form has been handed off.
	ErrAlreadySubmitted = errors.New("survey: form already submitted")
	// ErrWrongStep is returned when an input does not apply to the current step.
	ErrWrongStep = errors.New("survey: input does not apply to the current step")
	// ErrUnknownOption is returned when toggling a value the step does not offer.
	ErrUnknownOption = errors.New("survey: unknown option")
	// ErrEmptyValue is returned when toggling a blank language.
	ErrEmptyValue = errors.New("survey: empty value")
	// ErrNoIdentifier is returned when registration succeeds without an id.
	ErrNoIdentifier = errors.New("survey: registration response carried no identifier")
)

// Submitter sends the completed form to the registration endpoint and
// returns the identifier it assigns.
type Submitter interface {
	Submit(ctx context.Context, form FormData) (string, error)
}

// IdentitySetter receives the identifier issued at registration.
type IdentitySetter interface {
	SetUserID(ctx context.Context, userID string) error
}

// FailurePolicy decides what happens when submission fails.
type FailurePolicy int

const (
	// ContinueOnFailure logs the failure and navigates onward anyway.
	ContinueOnFailure FailurePolicy = iota
	// BlockOnFailure keeps the wizard on its last step and returns the error.
	BlockOnFailure
)

// Screen is where the front end should go after the wizard finishes.
type Screen string

// ScreenList is the activity list shown after registration.
const ScreenList Screen = "list"

// Outcome describes the effect of a successful Next call.
type Outcome struct {
	Cursor    int
	Submitted bool
	Screen    Screen
	UserID    string
	// Degraded is set when submission failed under ContinueOnFailure.
	Degraded bool
	Err      error
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithLogger sets the wizard's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Wizard) { w.log = log }
}

// WithFailurePolicy sets the submission failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(w *Wizard) { w.policy = p }
}

// Wizard is the survey state machine. It is not safe for concurrent use;
// a single input loop drives it.
type Wizard struct {
	questions []Question
	cursor    int
	consent   bool
	form      FormData
	submitted bool

	submitter Submitter
	identity  IdentitySetter
	policy    FailurePolicy
	log       zerolog.Logger
}

// New creates a wizard positioned on the first question.
func New(questions []Question, submitter Submitter, identity IdentitySetter, opts ...Option) (*Wizard, error) {
	if err := ValidateCatalog(questions); err != nil {
		return nil, err
	}
	if submitter == nil || identity == nil {
		return nil, fmt.Errorf("survey: submitter and identity are required")
	}
	w := &Wizard{
		questions: append([]Question{}, questions...),
		form:      NewFormData(),
		submitter: submitter,
		identity:  identity,
		policy:    ContinueOnFailure,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Len returns the number of steps.
func (w *Wizard) Len() int { return len(w.questions) }

// Cursor returns the index of the current step.
func (w *Wizard) Cursor() int { return w.cursor }

// Current returns the current step.
func (w *Wizard) Current() Question { return w.questions[w.cursor] }

// IsLast reports whether Next on the current step submits.
func (w *Wizard) IsLast() bool { return w.cursor == len(w.questions)-1 }

// Progress returns completion in percent, 0 on the first step and 100 on
// the last.
func (w *Wizard) Progress() float64 {
	if len(w.questions) < 2 {
		return 100
	}
	return float64(w.cursor) / float64(len(w.questions)-1) * 100
}

// Form returns a copy of the answers collected so far.
func (w *Wizard) Form() FormData { return w.form.Clone() }

// Consent reports the intro checkbox state.
func (w *Wizard) Consent() bool { return w.consent }

// Submitted reports whether the form has been handed off.
func (w *Wizard) Submitted() bool { return w.submitted }

// CanAdvance reports whether Next is enabled on the current step.
func (w *Wizard) CanAdvance() bool {
	if w.submitted {
		return false
	}
	return CanAdvance(w.Current(), w.form, w.consent)
}

// SetConsent sets the intro checkbox.
func (w *Wizard) SetConsent(v bool) { w.consent = v }

// SetUsername stores the username as typed.
func (w *Wizard) SetUsername(v string) { w.form.Username = v }

// SetPassword stores the password as typed.
func (w *Wizard) SetPassword(v string) { w.form.Password = v }

// SetText stores the answer of the current text step. When the step carries
// choices and v matches one of them the canonical spelling is stored.
func (w *Wizard) SetText(v string) error {
	q, ok := w.Current().(Text)
	if !ok {
		return ErrWrongStep
	}
	if canonical, ok := matchChoice(q.Choices, v); ok {
		v = canonical
	}
	w.form.setText(q.Field, v)
	return nil
}

// Toggle applies the selection rule of the current step to value: present
// values are removed, absent ones added. On the characteristics step the
// opposite side of the pair is dropped first.
func (w *Wizard) Toggle(value string) error {
	switch q := w.Current().(type) {
	case LanguageSelection:
		value = strings.TrimSpace(value)
		if value == "" {
			return ErrEmptyValue
		}
		w.form.Langs = toggle(w.form.Langs, value)
	case MultipleChoice:
		if !contains(q.Options, value) {
			return fmt.Errorf("%w: %q", ErrUnknownOption, value)
		}
		w.form.Hobbies = toggle(w.form.Hobbies, value)
	case TimeSelection:
		if !contains(q.Slots, value) {
			return fmt.Errorf("%w: %q", ErrUnknownOption, value)
		}
		w.form.Times = toggle(w.form.Times, value)
	case CharacteristicsPairs:
		next, ok := toggleTrait(w.form.Characteristics, q.Pairs, value)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOption, value)
		}
		w.form.Characteristics = next
	default:
		return ErrWrongStep
	}
	return nil
}

// Selected reports whether value is currently chosen on the current step.
func (w *Wizard) Selected(value string) bool {
	switch w.Current().(type) {
	case LanguageSelection:
		return contains(w.form.Langs, value)
	case MultipleChoice:
		return contains(w.form.Hobbies, value)
	case TimeSelection:
		return contains(w.form.Times, value)
	case CharacteristicsPairs:
		return contains(w.form.Characteristics, value)
	}
	return false
}

// Previous steps back one question. It returns false on the first step.
func (w *Wizard) Previous() bool {
	if w.submitted || w.cursor == 0 {
		return false
	}
	w.cursor--
	return true
}

// Next advances past a valid step, or submits when the current step is the
// last one.
func (w *Wizard) Next(ctx context.Context) (Outcome, error) {
	if w.submitted {
		return Outcome{Cursor: w.cursor}, ErrAlreadySubmitted
	}
	if !w.CanAdvance() {
		return Outcome{Cursor: w.cursor}, ErrCannotAdvance
	}
	if !w.IsLast() {
		w.cursor++
		return Outcome{Cursor: w.cursor}, nil
	}
	return w.submit(ctx)
}

func (w *Wizard) submit(ctx context.Context) (Outcome, error) {
	form := w.form.Clone()

	userID, err := w.submitter.Submit(ctx, form)
	if err == nil && strings.TrimSpace(userID) == "" {
		err = ErrNoIdentifier
	}

	if err == nil {
		metrics.SurveySubmissions.WithLabelValues("ok").Inc()
		if idErr := w.identity.SetUserID(ctx, userID); idErr != nil {
			w.log.Warn().Err(idErr).Str("user_id", userID).Msg("registered but identity was not persisted")
		}
		w.log.Info().Str("user_id", userID).Msg("registration submitted")
		w.finish()
		return Outcome{Cursor: w.cursor, Submitted: true, Screen: ScreenList, UserID: userID}, nil
	}

	metrics.SurveySubmissions.WithLabelValues("failed").Inc()
	w.log.Error().Err(err).Interface("pending_form", form.Redacted()).Msg("registration failed")

	if w.policy == BlockOnFailure {
		return Outcome{Cursor: w.cursor}, fmt.Errorf("survey: submit: %w", err)
	}
	w.finish()
	return Outcome{Cursor: w.cursor, Submitted: true, Screen: ScreenList, Degraded: true, Err: err}, nil
}

// finish drops the answers once they have been handed off.
func (w *Wizard) finish() {
	w.submitted = true
	w.form = NewFormData()
}
