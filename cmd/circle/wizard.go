package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lyfcircle/circle/internal/refdata"
	"github.com/lyfcircle/circle/internal/survey"
)

// Typed at any prompt.
const (
	inputBack = ":back"
	inputQuit = ":quit"
)

var errAborted = errors.New("registration aborted")

type nav int

const (
	navNext nav = iota
	navBack
	navQuit
)

// terminal is a line-oriented prompt.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

func (t *terminal) printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, format, args...)
}

// readLine prompts and returns the trimmed line. End of input is io.EOF.
func (t *terminal) readLine(prompt string) (string, error) {
	t.printf("%s", prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// navigation maps the reserved inputs.
func navigation(line string) (nav, bool) {
	switch line {
	case inputBack:
		return navBack, true
	case inputQuit:
		return navQuit, true
	}
	return navNext, false
}

// runWizard drives w from the terminal until the form is submitted.
func runWizard(ctx context.Context, w *survey.Wizard, t *terminal) (survey.Outcome, error) {
	t.printf("Type %s to go back, %s to stop.\n", inputBack, inputQuit)
	for {
		q := w.Current()
		t.printf("\n[%d/%d] %3.0f%%  %s\n", w.Cursor()+1, w.Len(), w.Progress(), q.Prompt())

		n, err := askStep(w, q, t)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return survey.Outcome{}, errAborted
			}
			return survey.Outcome{}, err
		}
		switch n {
		case navQuit:
			return survey.Outcome{}, errAborted
		case navBack:
			if !w.Previous() {
				t.printf("This is the first question.\n")
			}
			continue
		}

		out, err := w.Next(ctx)
		switch {
		case errors.Is(err, survey.ErrCannotAdvance):
			t.printf("Please complete this question first.\n")
		case err != nil:
			t.printf("Registration failed: %v\nPress enter on the last question to try again.\n", err)
		case out.Submitted:
			return out, nil
		}
	}
}

// askStep renders the current question and applies the answers typed for
// it. Every question variant has its own handler.
func askStep(w *survey.Wizard, q survey.Question, t *terminal) (nav, error) {
	switch q := q.(type) {
	case survey.Intro:
		return askIntro(w, t)
	case survey.Credentials:
		return askCredentials(w, t)
	case survey.Text:
		return askText(w, q, t)
	case survey.LanguageSelection:
		return askLanguages(w, q, t)
	case survey.MultipleChoice:
		return askOptions(w, q.Options, t)
	case survey.TimeSelection:
		return askOptions(w, q.Slots, t)
	case survey.CharacteristicsPairs:
		return askTraits(w, q, t)
	default:
		return navQuit, fmt.Errorf("unsupported question type %T", q)
	}
}

func askIntro(w *survey.Wizard, t *terminal) (nav, error) {
	def := "y/N"
	if w.Consent() {
		def = "Y/n"
	}
	line, err := t.readLine(fmt.Sprintf("I agree [%s]: ", def))
	if err != nil {
		return navQuit, err
	}
	if n, ok := navigation(line); ok {
		return n, nil
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		w.SetConsent(true)
	case "n", "no":
		w.SetConsent(false)
	}
	return navNext, nil
}

func askCredentials(w *survey.Wizard, t *terminal) (nav, error) {
	form := w.Form()
	line, err := t.readLine(withCurrent("Username", form.Username))
	if err != nil {
		return navQuit, err
	}
	if n, ok := navigation(line); ok {
		return n, nil
	}
	if line != "" {
		w.SetUsername(line)
	}

	hint := ""
	if form.Password != "" {
		hint = "********"
	}
	line, err = t.readLine(withCurrent("Password", hint))
	if err != nil {
		return navQuit, err
	}
	if n, ok := navigation(line); ok {
		return n, nil
	}
	if line != "" {
		w.SetPassword(line)
	}
	return navNext, nil
}

func askText(w *survey.Wizard, q survey.Text, t *terminal) (nav, error) {
	form := w.Form()
	current := form.Nickname
	if q.Field == survey.FieldCountry {
		current = form.Country
		if len(q.Choices) > 0 {
			t.printf("Enter a two-letter country code, e.g. SG for %s.\n", refdata.CountryName("SG"))
		}
	}

	line, err := t.readLine(withCurrent("Answer", current))
	if err != nil {
		return navQuit, err
	}
	if n, ok := navigation(line); ok {
		return n, nil
	}
	if line != "" {
		if err := w.SetText(line); err != nil {
			return navQuit, err
		}
		if q.Field == survey.FieldCountry {
			if name := refdata.CountryName(w.Form().Country); name != "" {
				t.printf("  %s\n", name)
			}
		}
	}
	return navNext, nil
}

// askLanguages toggles one language per line until an empty line.
func askLanguages(w *survey.Wizard, q survey.LanguageSelection, t *terminal) (nav, error) {
	if len(q.Suggestions) > 0 {
		t.printf("Suggestions: %s\n", strings.Join(preview(q.Suggestions, 12), ", "))
	}
	for {
		t.printf("Selected: %s\n", listOrNone(w.Form().Langs))
		line, err := t.readLine("Add or remove a language (empty line to continue): ")
		if err != nil {
			return navQuit, err
		}
		if n, ok := navigation(line); ok {
			return n, nil
		}
		if line == "" {
			return navNext, nil
		}
		if err := w.Toggle(line); err != nil {
			t.printf("%v\n", err)
		}
	}
}

// askOptions toggles numbered options until an empty line.
func askOptions(w *survey.Wizard, options []string, t *terminal) (nav, error) {
	for {
		for i, opt := range options {
			t.printf("  %2d) %s %s\n", i+1, checkbox(w.Selected(opt)), opt)
		}
		line, err := t.readLine("Toggle by number, e.g. 1 3 (empty line to continue): ")
		if err != nil {
			return navQuit, err
		}
		if n, ok := navigation(line); ok {
			return n, nil
		}
		if line == "" {
			return navNext, nil
		}
		toggleAll(w, options, line, t)
	}
}

// askTraits lists each pair side by side; numbers run left then right.
func askTraits(w *survey.Wizard, q survey.CharacteristicsPairs, t *terminal) (nav, error) {
	options := make([]string, 0, len(q.Pairs)*2)
	for _, p := range q.Pairs {
		options = append(options, p.Left, p.Right)
	}
	for {
		for i, p := range q.Pairs {
			t.printf("  %2d) %s %-22s %2d) %s %s\n",
				2*i+1, checkbox(w.Selected(p.Left)), p.Left,
				2*i+2, checkbox(w.Selected(p.Right)), p.Right)
		}
		line, err := t.readLine("Pick one of each pair by number (empty line to continue): ")
		if err != nil {
			return navQuit, err
		}
		if n, ok := navigation(line); ok {
			return n, nil
		}
		if line == "" {
			return navNext, nil
		}
		toggleAll(w, options, line, t)
	}
}

func toggleAll(w *survey.Wizard, options []string, line string, t *terminal) {
	for _, tok := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > len(options) {
			t.printf("No option %q.\n", tok)
			continue
		}
		if err := w.Toggle(options[n-1]); err != nil {
			t.printf("%v\n", err)
		}
	}
}

func withCurrent(label, current string) string {
	if current == "" {
		return label + ": "
	}
	return fmt.Sprintf("%s [%s]: ", label, current)
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func preview(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return append(append([]string{}, items[:n]...), fmt.Sprintf("and %d more", len(items)-n))
}
